package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type decimalDoc struct {
	Price decimal.Decimal `bson:"price"`
}

func TestDecimalCodecRoundTrip(t *testing.T) {
	registry := buildRegistry()
	in := decimalDoc{Price: decimal.RequireFromString("12345.6789")}

	data, err := bson.MarshalWithRegistry(registry, in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out decimalDoc
	if err := bson.UnmarshalWithRegistry(registry, data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Price.Equal(in.Price) {
		t.Fatalf("expected %s, got %s", in.Price.String(), out.Price.String())
	}
}

func TestDecimalCodecPreservesExactScale(t *testing.T) {
	registry := buildRegistry()
	in := decimalDoc{Price: decimal.RequireFromString("0.100000001")}

	data, err := bson.MarshalWithRegistry(registry, in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out decimalDoc
	if err := bson.UnmarshalWithRegistry(registry, data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Price.String() != "0.100000001" {
		t.Fatalf("expected exact string round-trip, got %s", out.Price.String())
	}
}
