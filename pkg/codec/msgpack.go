package codec

import "github.com/vmihailenco/msgpack/v5"

func init() {
	Register(Backend{
		Name: "msgpack",
		Marshal: func(v interface{}) ([]byte, error) {
			return msgpack.Marshal(v)
		},
		Unmarshal: func(data []byte, v interface{}) error {
			return msgpack.Unmarshal(data, v)
		},
	})
}
