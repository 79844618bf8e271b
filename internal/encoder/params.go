package encoder

// Params represents all parameters needed to generate an encoder command
// for a single output pipeline. One Params value maps to exactly one
// subprocess invocation; the orchestrator builds one per enabled format.
type Params struct {
	// Input Configuration
	InputURL string // srt://, rtmp://, file path, or lavfi test source

	// Video Configuration
	VideoCodec  string // libx264, libx265
	BitrateKbps int    // video bitrate in kbit/s
	Width       int
	Height      int
	Framerate   int
	GOP         int    // keyframe interval in frames (0 = not set)
	BFrames     int    // B-frame count (-1 = not set, 0 = no B-frames)
	Profile     string // main, high
	PixelFormat string // yuv420p

	// Audio Configuration
	AudioCodec       string // aac, libopus
	AudioBitrateKbps int
	SampleRate       int
	Channels         int

	// Packaging Configuration
	Format         string // hls or dash muxer
	SegmentSeconds int    // segment duration
	PlaylistLength int    // HLS playlist window (segments)
	WindowSize     int    // DASH window size (segments)
	OutputPath     string // playlist/manifest path the muxer writes to

	// Ad-marker Configuration
	SCTE35PID      int  // MPEG-TS PID for splice info (0 = disabled)
	CopyTimestamps bool // preserve source timestamps for marker alignment

	// Monitoring
	ProgressSocket string // Unix socket for -progress output ("" = disabled)
}
