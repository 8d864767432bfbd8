package main

import (
	"flag"
	"log"
	"math/rand/v2"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	hostCount := flag.Int("hosts", 12, "Number of distinct hosts talking to each other")
	arpEvery := flag.Int("arp", 50, "Emit an ARP frame every N packets (0 disables)")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.Parse()

	if *hostCount < 2 {
		log.Fatalf("At least two hosts are required, got %d", *hostCount)
	}

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	hosts := makeHosts(rng, *hostCount)
	ts := time.Now()

	log.Printf("Generating %d packets between %d hosts into %s...", *packetCount, len(hosts), *outputFile)

	for i := 0; i < *packetCount; i++ {
		if (i+1)%100000 == 0 {
			log.Printf("Generated %d packets...", i+1)
		}
		ts = ts.Add(time.Duration(rng.IntN(5000)) * time.Microsecond)

		var data []byte
		if *arpEvery > 0 && (i+1)%*arpEvery == 0 {
			data = arpFrame(hosts[0], hosts[1])
		} else {
			// Skewed pick so a few conversations dominate, like real traffic.
			a := hosts[rng.IntN(1+rng.IntN(len(hosts)))]
			b := hosts[rng.IntN(len(hosts))]
			for b.Equal(a) {
				b = hosts[rng.IntN(len(hosts))]
			}
			if rng.IntN(2) == 0 {
				a, b = b, a
			}
			data = ipFrame(rng, a, b)
		}

		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := pcapWriter.WritePacket(ci, data); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}

// makeHosts returns n distinct addresses, half private and half public.
func makeHosts(rng *rand.Rand, n int) []net.IP {
	seen := make(map[string]bool, n)
	hosts := make([]net.IP, 0, n)
	for len(hosts) < n {
		var ip net.IP
		if len(hosts)%2 == 0 {
			ip = net.IP{192, 168, 1, byte(1 + rng.IntN(254))}
		} else {
			ip = net.IP{byte(1 + rng.IntN(223)), byte(rng.IntN(256)), byte(rng.IntN(256)), byte(1 + rng.IntN(254))}
		}
		if seen[ip.String()] {
			continue
		}
		seen[ip.String()] = true
		hosts = append(hosts, ip)
	}
	return hosts
}

func ipFrame(rng *rand.Rand, src, dst net.IP) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{SrcIP: src, DstIP: dst, Version: 4, TTL: 64}
	payload := make([]byte, rng.IntN(1400)+50)
	for i := range payload {
		payload[i] = byte(rng.IntN(256))
	}

	var transport gopacket.SerializableLayer
	switch n := rng.IntN(10); {
	case n < 6:
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(rng.IntN(65535-1024) + 1024),
			DstPort: []layers.TCPPort{80, 443, 22}[rng.IntN(3)],
			Seq:     rng.Uint32(),
			Ack:     rng.Uint32(),
			ACK:     true,
			PSH:     true,
			Window:  14600,
		}
		tcp.SetNetworkLayerForChecksum(ip)
		transport = tcp
	case n < 9:
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(rng.IntN(65535-1024) + 1024),
			DstPort: []layers.UDPPort{53, 123, 5353}[rng.IntN(3)],
		}
		udp.SetNetworkLayerForChecksum(ip)
		transport = udp
	default:
		ip.Protocol = layers.IPProtocolICMPv4
		transport = &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			Id:       uint16(rng.IntN(65536)),
			Seq:      uint16(rng.IntN(65536)),
		}
		payload = payload[:min(56, len(payload))]
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
		log.Fatalf("Failed to serialize layers: %v", err)
	}
	return buf.Bytes()
}

func arpFrame(sender, target net.IP) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: sender.To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    target.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		log.Fatalf("Failed to serialize ARP: %v", err)
	}
	return buf.Bytes()
}
