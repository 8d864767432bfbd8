package model

// Observer receives the notifications the ingestion pipeline emits for the
// presentation layer. Calls are made in ingestion order, one at a time,
// after the pipeline's state lock has been released. An observer may call
// back into the pipeline; notifications caused by such a call are delivered
// after the current one returns.
type Observer interface {
	// PacketAppended is called for every accepted packet that belongs to the
	// currently displayed view.
	PacketAppended(rec PacketRecord)

	// ConversationsChanged carries the full conversation list, sorted by count.
	ConversationsChanged(convs []ConversationSummary)

	// GraphChanged carries the graph data for the currently relevant scope.
	GraphChanged(view GraphView)

	// ViewReset replaces the displayed packet list, e.g. after a selection change.
	ViewReset(recs []PacketRecord)
}

// ObserverFuncs adapts optional functions to the Observer interface.
// Nil fields are ignored.
type ObserverFuncs struct {
	OnPacket        func(PacketRecord)
	OnConversations func([]ConversationSummary)
	OnGraph         func(GraphView)
	OnReset         func([]PacketRecord)
}

func (o ObserverFuncs) PacketAppended(rec PacketRecord) {
	if o.OnPacket != nil {
		o.OnPacket(rec)
	}
}

func (o ObserverFuncs) ConversationsChanged(convs []ConversationSummary) {
	if o.OnConversations != nil {
		o.OnConversations(convs)
	}
}

func (o ObserverFuncs) GraphChanged(view GraphView) {
	if o.OnGraph != nil {
		o.OnGraph(view)
	}
}

func (o ObserverFuncs) ViewReset(recs []PacketRecord) {
	if o.OnReset != nil {
		o.OnReset(recs)
	}
}
