//go:build !whisper_cpp

package whisper

func NewEngine(modelPath string, opts Options) (Engine, error) {
	return nil, ErrUnavailable
}
