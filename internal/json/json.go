package json

import (
	"github.com/bytedance/sonic"
)

// api sorts map keys so rendered records are stable, and keeps JSON numbers
// as json.Number so their original text survives decoding.
var api = sonic.Config{
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func Unmarshal(b []byte, v any) error {
	return api.Unmarshal(b, v)
}
