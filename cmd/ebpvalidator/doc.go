// Command ebpvalidator checks Encoder Boundary Point and SCTE-35 signaling
// across one or more MPEG-2 transport stream inputs.
//
//	ebpvalidator validate a.ts b.ts
//	ebpvalidator validate --duration 1m udp://10.0.0.9@232.1.1.1:5000 srt://enc:9000
//	ebpvalidator config init
package main
