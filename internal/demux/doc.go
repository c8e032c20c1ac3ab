// Package demux inspects elementary stream payloads for stream access
// points. It scans H.264 and H.265 Annex B byte streams for NAL unit types,
// checks AAC ADTS, AC-3 and MPEG audio sync words, and maps what it finds to
// a SAP type (ISO/IEC 14496-12 Annex I) with [SAPType].
package demux
