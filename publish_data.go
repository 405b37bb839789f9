package jsdrv

import (
	"fmt"
	"log"

	zmq "github.com/pebbe/zmq4"

	"github.com/jetperch/joulescope-driver-sub001/getbytes"
	"github.com/jetperch/joulescope-driver-sub001/stats"
)

// blockFormatVersion identifies the binary layout of published packets.
const blockFormatVersion uint32 = 1

// PublishBlocks publishes one packet per OutputBlock received on its input
// to a ZMQ PUB socket. It terminates when the abort channel is closed.
//
// Each packet is 4 frames: a fixed header, then the current, voltage, and
// GPI payloads as raw little-endian arrays.
func PublishBlocks(blocks <-chan *OutputBlock, abort <-chan struct{}, portnum int) {
	pubSocket, err := newPubSocket(portnum)
	if err != nil {
		log.Printf("could not create block publisher: %v", err)
		return
	}
	defer pubSocket.Close()

	for {
		select {
		case <-abort:
			return
		case block := <-blocks:
			if err := sendBlock(pubSocket, block); err != nil {
				ProblemLogger.Printf("could not publish block at sample %d: %v", block.SampleID, err)
			}
		}
	}
}

// PublishSummaries publishes one packet per SummaryRecord received on its
// input to a ZMQ PUB socket. It terminates when the abort channel is closed.
func PublishSummaries(summaries <-chan *SummaryRecord, abort <-chan struct{}, portnum int) {
	pubSocket, err := newPubSocket(portnum)
	if err != nil {
		log.Printf("could not create summary publisher: %v", err)
		return
	}
	defer pubSocket.Close()

	for {
		select {
		case <-abort:
			return
		case rec := <-summaries:
			if _, err := pubSocket.SendBytes(summaryPacket(rec), 0); err != nil {
				ProblemLogger.Printf("could not publish summary at sample %d: %v", rec.SampleID, err)
			}
		}
	}
}

func newPubSocket(portnum int) (*zmq.Socket, error) {
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	hostname := fmt.Sprintf("tcp://*:%d", portnum)
	if err := pubSocket.Bind(hostname); err != nil {
		pubSocket.Close()
		return nil, err
	}
	return pubSocket, nil
}

func sendBlock(s *zmq.Socket, block *OutputBlock) error {
	if _, err := s.SendBytes(blockHeader(block), zmq.SNDMORE); err != nil {
		return err
	}
	if _, err := s.SendBytes(getbytes.FromSliceFloat32(block.Current), zmq.SNDMORE); err != nil {
		return err
	}
	if _, err := s.SendBytes(getbytes.FromSliceFloat32(block.Voltage), zmq.SNDMORE); err != nil {
		return err
	}
	_, err := s.SendBytes(getbytes.FromSliceUint8(block.GPI), 0)
	return err
}

// blockHeader lays out version, decimate factor, first sample id, and the
// two payload lengths as little-endian fields.
func blockHeader(block *OutputBlock) []byte {
	header := make([]byte, 0, 24)
	header = append(header, getbytes.FromSliceUint32([]uint32{
		blockFormatVersion,
		block.DecimateFactor,
	})...)
	header = append(header, getbytes.FromUint64(block.SampleID)...)
	header = append(header, getbytes.FromSliceUint32([]uint32{
		uint32(len(block.Current)),
		uint32(len(block.GPI)),
	})...)
	return header
}

// summaryPacket lays out one summary record as a single flat frame.
func summaryPacket(rec *SummaryRecord) []byte {
	b := make([]byte, 0, 96)
	b = append(b, getbytes.FromUint32(blockFormatVersion)...)
	b = append(b, getbytes.FromUint32(0)...) // reserved
	b = append(b, getbytes.FromUint64(rec.SampleID)...)
	b = append(b, getbytes.FromInt64(int64(rec.UTC))...)
	b = append(b, getbytes.FromUint64(rec.SampleCount)...)
	for _, e := range []stats.SummaryEntry{rec.Current, rec.Voltage, rec.Power} {
		b = append(b, getbytes.FromSliceFloat32([]float32{e.Avg, e.Std, e.Min, e.Max})...)
	}
	b = append(b, getbytes.FromFloat64(rec.Charge)...)
	b = append(b, getbytes.FromFloat64(rec.Energy)...)
	return b
}
