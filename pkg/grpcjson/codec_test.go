package grpcjson

import (
	"testing"

	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(Name)
	if c == nil {
		t.Fatal("json codec not registered")
	}

	type msg struct {
		OrderID string `json:"orderId"`
		Exists  bool   `json:"exists"`
	}
	b, err := c.Marshal(&msg{OrderID: "o-1", Exists: true})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"orderId":"o-1","exists":true}` {
		t.Fatalf("wire = %s", b)
	}
	var out msg
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.OrderID != "o-1" || !out.Exists {
		t.Fatalf("decoded %+v", out)
	}
}
