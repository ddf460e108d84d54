package event

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestParseType(t *testing.T) {
	for typ, name := range typeNames {
		got, err := ParseType(name)
		if err != nil {
			t.Fatalf("ParseType(%q) failed: %v", name, err)
		}
		if got != typ {
			t.Errorf("ParseType(%q) = %d, want %d", name, got, typ)
		}
	}
	if _, err := ParseType("PurchaseNft"); err == nil {
		t.Error("Expected error for unknown name")
	}
	if !IxMintNft.IsFixture() || IxBuyNft.IsFixture() {
		t.Error("Unexpected fixture classification")
	}
}

func TestSigners(t *testing.T) {
	buyer := solana.NewWallet().PublicKey()
	ix := &BuyNft{Settlement{Buyer: buyer, Seller: solana.NewWallet().PublicKey()}}

	signers := Signers(ix)
	if len(signers) != 1 || !signers[0].Equals(buyer) {
		t.Errorf("Expected only the buyer to sign, got %v", signers)
	}
}

func TestEncodeDecode_EmbeddedSettlement(t *testing.T) {
	in := &SettleAuction{Settlement{
		ItemID:     "7",
		Bump:       253,
		Buyer:      solana.NewWallet().PublicKey(),
		Listing:    solana.NewWallet().PublicKey(),
		BuyerToken: solana.NewWallet().PublicKey(),
	}}

	payload, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if payload[len(payload)-1] == '\n' {
		t.Error("Payload should not end with a newline")
	}

	out, err := Decode(IxSettleAuction, payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, ok := out.(*SettleAuction)
	if !ok {
		t.Fatalf("Expected *SettleAuction, got %T", out)
	}
	if got.Settlement != in.Settlement {
		t.Errorf("Expected %+v, got %+v", in.Settlement, got.Settlement)
	}

	if _, err := Decode(Type(99), payload); err == nil {
		t.Error("Expected error for unknown type")
	}
}

func TestBufferPool(t *testing.T) {
	buf := AcquireBuffer()
	buf.WriteString("payload")
	ReleaseBuffer(buf)

	buf2 := AcquireBuffer()
	if buf2.Len() != 0 {
		t.Error("Buffer should be reset after release")
	}
	ReleaseBuffer(buf2)
}

func BenchmarkEncode(b *testing.B) {
	ix := &Bid{ItemID: "1", Amount: 10_000, Bidder: solana.NewWallet().PublicKey()}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Encode(ix); err != nil {
			b.Fatal(err)
		}
	}
}
