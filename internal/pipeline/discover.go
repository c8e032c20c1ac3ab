package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/stfn345/ats-ebp-validator/internal/demux"
	"github.com/stfn345/ats-ebp-validator/internal/ebp"
	"github.com/stfn345/ats-ebp-validator/internal/media"
	"github.com/stfn345/ats-ebp-validator/internal/mpegts"
	"github.com/stfn345/ats-ebp-validator/internal/scte35"
	"github.com/stfn345/ats-ebp-validator/internal/stream"
)

// ErrNoPMT is returned when discovery reads its whole budget without
// finding a program map.
var ErrNoPMT = errors.New("pipeline: no PMT found")

// PMT descriptor tags inspected during discovery.
const (
	tagLanguage         = 0x0A
	tagStreamIdentifier = 0x52
	tagComponentName    = 0xA3
	tagAAC              = 0x7C
)

// audioProbePES is the number of audio PES units without an EBP structure,
// counted once every video stream is settled, after which discovery stops
// waiting on that audio stream and leaves it to inherit from video.
const audioProbePES = 16

var codecDescriptorTags = []uint8{demux.DescriptorAC3, demux.DescriptorATSCAC3, demux.DescriptorEAC3, tagAAC}

// Discover reads r, which the caller bounds (a limited file reader or a
// non-destructive ring buffer peek), and reports the elementary streams of
// the first program with their EBP signaling and the SCTE-35 PIDs. It
// returns early once every stream is settled: it carries an EBP descriptor,
// it has shown its first EBP structure, or it is audio that went
// audioProbePES units without one after video settled.
func Discover(ctx context.Context, r io.Reader, log *slog.Logger) (stream.Discovery, error) {
	if log == nil {
		log = slog.Default()
	}
	dmx := mpegts.NewDemuxer(ctx, r, mpegts.DemuxerOptDescriptorDecoder(ebp.DescriptorTag, ebp.DecodeDescriptorValue))

	var (
		disc     stream.Discovery
		pmt      *mpegts.PMTData
		index    = make(map[uint16]int)
		settled  []bool
		bare     []int // audio PES without EBP seen since video settled
		waiting  int
		videos   int // video streams not yet settled
		anyVideo bool
	)
	settle := func(i int) {
		if settled[i] {
			return
		}
		settled[i] = true
		waiting--
		if disc.Streams[i].Kind == media.KindVideo {
			videos--
		}
	}
	for {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return disc, fmt.Errorf("pipeline: discover: %w", err)
		}

		switch {
		case d.PMT != nil && pmt == nil:
			pmt = d.PMT
			disc = probesFromPMT(pmt, log)
			settled = make([]bool, len(disc.Streams))
			bare = make([]int, len(disc.Streams))
			waiting = len(disc.Streams)
			for i, p := range disc.Streams {
				index[p.PID] = i
				if p.Kind == media.KindVideo {
					videos++
					anyVideo = true
				}
			}
			for i, p := range disc.Streams {
				if p.Descriptor != nil {
					settle(i)
				}
			}

		case d.PES != nil && pmt != nil:
			i, ok := index[d.FirstPacket.Header.PID]
			if !ok || settled[i] {
				continue
			}
			if e := firstPacketEBP(d.FirstPacket); e != nil {
				disc.Streams[i].FirstEBP = e
				settle(i)
				continue
			}
			if disc.Streams[i].Kind == media.KindAudio && anyVideo && videos == 0 {
				bare[i]++
				if bare[i] >= audioProbePES {
					log.Debug("audio shows no EBP, leaving it to inherit", "pid", disc.Streams[i].PID)
					settle(i)
				}
			}
		}
		if pmt != nil && waiting == 0 {
			break
		}
	}

	if pmt == nil {
		return disc, ErrNoPMT
	}
	log.Debug("discovery finished", "streams", len(disc.Streams), "scte35_pids", len(disc.SCTE35PIDs),
		"packets", dmx.Packets())
	return disc, nil
}

func firstPacketEBP(p *mpegts.Packet) *ebp.EBP {
	af := p.AdaptationField
	if af == nil || len(af.PrivateData) == 0 {
		return nil
	}
	e, err := ebp.FromPrivateData(af.PrivateData)
	if err != nil {
		return nil
	}
	return e
}

func probesFromPMT(pmt *mpegts.PMTData, log *slog.Logger) stream.Discovery {
	var disc stream.Discovery
	for _, es := range pmt.ElementaryStreams {
		if es.StreamType == scte35.StreamType {
			disc.SCTE35PIDs = append(disc.SCTE35PIDs, es.ElementaryPID)
			continue
		}

		tags := make([]uint8, 0, len(es.Descriptors))
		for _, d := range es.Descriptors {
			tags = append(tags, d.Tag)
		}
		codec := demux.CodecForStreamType(es.StreamType, tags...)
		var kind media.Kind
		switch {
		case codec.IsVideo():
			kind = media.KindVideo
		case codec.IsAudio():
			kind = media.KindAudio
		default:
			log.Debug("ignoring elementary stream", "pid", es.ElementaryPID, "stream_type", es.StreamType)
			continue
		}

		p := stream.Probe{PID: es.ElementaryPID, StreamType: es.StreamType, Kind: kind, Codec: codec}
		for _, d := range es.Descriptors {
			switch d.Tag {
			case tagLanguage:
				if len(d.Data) >= 3 {
					p.Language = string(d.Data[:3])
				}
			case tagStreamIdentifier:
				if len(d.Data) >= 1 {
					p.ComponentTag, p.HasComponentTag = d.Data[0], true
				}
			case tagComponentName:
				p.ComponentName = componentName(d.Data)
			case ebp.DescriptorTag:
				if desc, ok := d.Value.(*ebp.Descriptor); ok {
					p.Descriptor = desc
				} else if d.Err != nil {
					log.Warn("malformed EBP descriptor", "pid", es.ElementaryPID, "error", d.Err)
				}
			}
			for _, tag := range codecDescriptorTags {
				if d.Tag == tag {
					p.CodecDescriptor = append(p.CodecDescriptor, d.Tag, byte(len(d.Data)))
					p.CodecDescriptor = append(p.CodecDescriptor, d.Data...)
				}
			}
		}
		disc.Streams = append(disc.Streams, p)
	}
	return disc
}

// componentName returns the first segment of the first string of an ATSC
// multiple_string_structure.
//
//	number_strings(8)
//	  ISO_639_language_code(24) number_segments(8)
//	    compression_type(8) mode(8) number_bytes(8) compressed_string_byte(8 * n)
func componentName(b []byte) string {
	if len(b) < 8 || b[0] == 0 || b[4] == 0 {
		return ""
	}
	n := int(b[7])
	if 8+n > len(b) {
		return ""
	}
	return string(b[8 : 8+n])
}
