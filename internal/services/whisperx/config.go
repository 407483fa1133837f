package whisperx

// Config captures runtime settings for WhisperX transcription.
type Config struct {
	// Model is the WhisperX model to use (e.g., "large-v3").
	Model string
	// CUDAEnabled enables GPU acceleration.
	CUDAEnabled bool
}

const (
	DefaultModel   = "large-v3"
	CUDAIndexURL   = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL   = "https://pypi.org/simple"
	BatchSize      = "8"
	ChunkSize      = "20"
	BeamSize       = "5"
	VADMethod      = "silero"
	OutputFormat   = "json"
	CPUDevice      = "cpu"
	CUDADevice     = "cuda"
	CPUComputeType = "float32"
)

const (
	UVXCommand    = "uvx"
	FFmpegCommand = "ffmpeg"
)
