package codec

import (
	"bytes"
	"encoding/gob"
)

func init() {
	Register(Backend{
		Name: "gob",
		Marshal: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		Unmarshal: func(data []byte, v interface{}) error {
			if len(data) == 0 {
				return nil
			}
			return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
		},
	})
}
