package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"dreadlink/remote"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/gopacket/tcpassembly"
	"github.com/remeh/sizedwaitgroup"
)

// pcapWorkers bounds how many capture files decode at once.
const pcapWorkers = 4

// decodeCaptures decodes every file and writes their reports to out in
// argument order.
func decodeCaptures(ctx context.Context, paths []string, hostPort uint16, out io.Writer) error {
	reports := make([][]string, len(paths))
	errs := make([]error, len(paths))
	swg := sizedwaitgroup.New(pcapWorkers)
	for i, p := range paths {
		if err := swg.AddWithContext(ctx); err != nil {
			errs[i] = err
			break
		}
		go func(i int, p string) {
			defer swg.Done()
			reports[i], errs[i] = decodeCapture(ctx, p, hostPort)
		}(i, p)
	}
	swg.Wait()

	for i, p := range paths {
		if len(paths) > 1 {
			fmt.Fprintf(out, "== %s\n", p)
		}
		for _, line := range reports[i] {
			fmt.Fprintln(out, line)
		}
		if errs[i] != nil {
			errs[i] = fmt.Errorf("%s: %w", p, errs[i])
		}
	}
	return errors.Join(errs...)
}

func openPacketSource(f *os.File) (*gopacket.PacketSource, error) {
	if ng, err := pcapgo.NewNgReader(f, pcapgo.NgReaderOptions{}); err == nil {
		return gopacket.NewPacketSource(ng, ng.LinkType()), nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, err
	}
	return gopacket.NewPacketSource(r, r.LinkType()), nil
}

// decodeCapture returns one line per protocol packet found in the TCP
// streams of a capture. Segments from hostPort are host to client output;
// every other segment is one client command.
func decodeCapture(ctx context.Context, path string, hostPort uint16) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	source, err := openPacketSource(f)
	if err != nil {
		return nil, err
	}

	factory := &pcapStreamFactory{host: layers.NewTCPPortEndpoint(layers.TCPPort(hostPort))}
	pool := tcpassembly.NewStreamPool(factory)
	assembler := tcpassembly.NewAssembler(pool)

	for {
		select {
		case <-ctx.Done():
			assembler.FlushAll()
			return factory.lines, ctx.Err()
		default:
		}
		pkt, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return factory.lines, err
		}
		net := pkt.NetworkLayer()
		if net == nil {
			continue
		}
		tcp, ok := pkt.TransportLayer().(*layers.TCP)
		if !ok {
			continue
		}
		assembler.AssembleWithTimestamp(net.NetworkFlow(), tcp, pkt.Metadata().CaptureInfo.Timestamp)
	}
	assembler.FlushAll()
	return factory.lines, nil
}

type pcapStreamFactory struct {
	host  gopacket.Endpoint
	lines []string
}

func (f *pcapStreamFactory) New(net, transport gopacket.Flow) tcpassembly.Stream {
	return &pcapStream{
		factory:  f,
		fromHost: transport.Src() == f.host,
		label:    fmt.Sprintf("%v:%v->%v:%v", net.Src(), transport.Src(), net.Dst(), transport.Dst()),
	}
}

func (f *pcapStreamFactory) addLine(ts time.Time, dir, label string, frame fmt.Stringer) {
	f.lines = append(f.lines, fmt.Sprintf("%s %s %s %v", ts.UTC().Format("15:04:05.000000"), dir, label, frame))
}

type pcapStream struct {
	factory  *pcapStreamFactory
	fromHost bool
	label    string
	dec      remote.StreamDecoder
}

func (s *pcapStream) Reassembled(rs []tcpassembly.Reassembly) {
	for _, r := range rs {
		if len(r.Bytes) == 0 {
			continue
		}
		if s.fromHost {
			s.hostBytes(r.Seen, r.Bytes)
		} else {
			s.command(r.Seen, r.Bytes)
		}
	}
}

// command decodes one client segment. The host reads each segment as a
// single command, so the capture is decoded the same way.
func (s *pcapStream) command(ts time.Time, b []byte) {
	logDebugPacket("pcap C->H", b)
	frame, err := remote.ParseCommand(b)
	if err != nil {
		s.factory.addLine(ts, "C->H", s.label, rawNote{b: b, err: err})
		return
	}
	s.factory.addLine(ts, "C->H", s.label, frame)
}

func (s *pcapStream) hostBytes(ts time.Time, b []byte) {
	logDebugPacket("pcap H->C", b)
	s.dec.Write(b)
	for {
		frame, ok, err := s.dec.Next()
		if err != nil {
			s.factory.addLine(ts, "H->C", s.label, rawNote{b: b, err: err})
			s.dec = remote.StreamDecoder{}
			return
		}
		if !ok {
			return
		}
		s.factory.addLine(ts, "H->C", s.label, frame)
	}
}

func (s *pcapStream) ReassemblyComplete() {
	if n := s.dec.Buffered(); n > 0 {
		s.factory.lines = append(s.factory.lines, fmt.Sprintf("%s: %d trailing bytes", s.label, n))
	}
}

// rawNote reports bytes that did not decode.
type rawNote struct {
	b   []byte
	err error
}

func (n rawNote) String() string {
	return fmt.Sprintf("undecoded (%v) % x", n.err, n.b)
}
