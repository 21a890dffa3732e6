package store

import (
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// buildRegistry returns a BSON registry that marshals decimal.Decimal as
// its exact decimal-string representation. The driver has no native codec
// for shopspring/decimal, and round-tripping through BSON's float64 would
// lose precision on price/size arithmetic throughout the agent.
func buildRegistry() *bson.Registry {
	return bson.NewRegistry().
		RegisterTypeEncoder(decimalType, bson.ValueEncoderFunc(encodeDecimal)).
		RegisterTypeDecoder(decimalType, bson.ValueDecoderFunc(decodeDecimal))
}

func encodeDecimal(ec bson.EncodeContext, vw bson.ValueWriter, val reflect.Value) error {
	d, ok := val.Interface().(decimal.Decimal)
	if !ok {
		return fmt.Errorf("store: decimal encoder: unexpected type %s", val.Type())
	}
	return vw.WriteString(d.String())
}

func decodeDecimal(dc bson.DecodeContext, vr bson.ValueReader, val reflect.Value) error {
	if !val.CanSet() {
		return fmt.Errorf("store: decimal decoder: value not settable")
	}
	s, err := vr.ReadString()
	if err != nil {
		return fmt.Errorf("store: decimal decoder: %w", err)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("store: decimal decoder: parse %q: %w", s, err)
	}
	val.Set(reflect.ValueOf(d))
	return nil
}
