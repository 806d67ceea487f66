// Package mediagrid composes the streams of a conference into a single
// gallery view and records it.
//
// Key pieces include:
//   - TilesLayout and ComputeGrid, which pick the rows x cols grid giving
//     tiles the largest area for a canvas
//   - TilePainter, which draws one participant (latest frame or placeholder,
//     title bar, outline) onto a DrawSurface
//   - Compositor, which owns the canvas, the render loop and the AudioMixer,
//     and exposes the result as one MediaStream
//   - Recorder, which encodes that stream and writes the chunks to a Sink,
//     one write at a time
//   - Sinks for files (FileSink), RTP over UDP (RTPSink) and RTMP (RTMPSink)
//
// # Architecture
//
//	Tiles:   MediaStream -> TilePainter -> DrawSurface (GGSurface)
//	Video:   Compositor render loop -> canvas track ---\
//	Audio:   MediaStream -> AudioMixer -> mixed track --+-> Encoder -> write chain -> Sink
//
// Tracks are pull-based: consumers call ReadFrame or ReadSamples, which
// block until the next frame is due and return io.EOF once the track ends.
//
// # Layout
//
// Without a big tile every drawn tile shares one grid covering the canvas.
// With a big tile and at least one other tile, the big tile takes the left
// BigTileShare of the width and the others share a grid in the rest.
package mediagrid
