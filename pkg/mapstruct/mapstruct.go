package mapstruct

import (
	"github.com/go-viper/mapstructure/v2"
)

// Decode decodes a loosely typed map (typically a yaml/json subtree) into out.
// Durations may be written as strings ("5s"), field names follow the yaml tag.
func Decode(input any, out any) error {
	if input == nil {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "yaml",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
