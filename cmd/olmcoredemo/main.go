// Command olmcoredemo exercises two of this module's testable scenarios end
// to end against the SQLite database at the configured path
// (OLMCORE_DB_PATH, default matrix-sdk-crypto.db): the Olm prekey handshake
// (spec §8 S1) and a QR verification envelope round trip (spec §8 S4).
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/jaydenbeard/olmcore/internal/cryptoconfig"
	"github.com/jaydenbeard/olmcore/internal/olm"
	"github.com/jaydenbeard/olmcore/internal/primitives"
	"github.com/jaydenbeard/olmcore/internal/qrverify"
	"github.com/jaydenbeard/olmcore/internal/store"
)

func main() {
	cfg := cryptoconfig.Load()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("FATAL: open store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("warning: close store: %v", err)
		}
	}()

	if err := runPrekeyFlow(context.Background(), st); err != nil {
		log.Fatalf("FATAL: prekey flow: %v", err)
	}

	if err := runQrRoundTrip(); err != nil {
		log.Fatalf("FATAL: qr round trip: %v", err)
	}

	fmt.Println("olmcoredemo: prekey flow and QR round trip both succeeded")
}

// runPrekeyFlow mirrors scenario S1: from a fixed demo root key and Bob's
// one-time key, Alice opens an outbound session and Bob an inbound one; Bob
// decrypts Alice's prekey "hello", Alice decrypts Bob's "hi", and Alice's
// session is then saved to the store under a demo account row. Root keys are
// not compared.
func runPrekeyFlow(ctx context.Context, st *store.Store) error {
	bobIdentity, err := primitives.GenerateCurve25519KeyPair()
	if err != nil {
		return err
	}
	bobOneTime, err := primitives.GenerateCurve25519KeyPair()
	if err != nil {
		return err
	}

	aliceIdentity, err := primitives.GenerateCurve25519KeyPair()
	if err != nil {
		return err
	}

	var rootKey [32]byte
	copy(rootKey[:], "demo-only-shared-secret-32-bytes")

	alice, err := olm.NewOutbound(rootKey, bobOneTime.PublicKey, bobIdentity.PublicKey, bobOneTime.PublicKey)
	if err != nil {
		return err
	}
	bob := olm.NewInbound(rootKey, bobOneTime)

	wire, err := alice.Encrypt([]byte("hello"))
	if err != nil {
		return err
	}
	pm, err := olm.DecodePrekeyMessage(wire)
	if err != nil {
		return err
	}
	plaintext, err := bob.Decrypt(pm.Inner)
	if err != nil {
		return err
	}
	if string(plaintext) != "hello" {
		return fmt.Errorf("unexpected plaintext from bob: %q", plaintext)
	}

	reply, err := bob.Encrypt([]byte("hi"))
	if err != nil {
		return err
	}
	plaintext, err = alice.Decrypt(reply)
	if err != nil {
		return err
	}
	if string(plaintext) != "hi" {
		return fmt.Errorf("unexpected plaintext from alice: %q", plaintext)
	}

	blob, err := alice.Marshal()
	if err != nil {
		return err
	}
	if err := st.SaveAccount(ctx, "@demo-alice:example.org", "DEMOALICE", []byte(aliceIdentity.PublicKey[:]), true); err != nil {
		return err
	}
	if _, _, err := st.LoadAccount(ctx, "@demo-alice:example.org", "DEMOALICE"); err != nil {
		return err
	}
	return st.SaveSession(ctx, uuid.NewString(), fmt.Sprintf("%x", bobIdentity.PublicKey), blob, 0, 0)
}

// runQrRoundTrip encodes a self-verification envelope with a fresh flow ID,
// decodes it again and checks that the flow ID survived the round trip.
func runQrRoundTrip() error {
	msg := &qrverify.Message{
		Mode:   qrverify.ModeSelfVerification,
		FlowID: qrverify.NewFlowID(),
		Secret: []byte("olmcoredemo-shared-secret"),
	}
	copy(msg.KeyA[:], []byte("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	copy(msg.KeyB[:], []byte("BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"))

	encoded, err := qrverify.Encode(msg)
	if err != nil {
		return err
	}
	decoded, err := qrverify.Decode(encoded)
	if err != nil {
		return err
	}
	if decoded.FlowID != msg.FlowID {
		return fmt.Errorf("flow id mismatch after round trip: %q != %q", decoded.FlowID, msg.FlowID)
	}
	return nil
}
