// Command smoke drives one sticker and one permit through their decision
// flows against a running API seeded with the demo data.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"estatehub.org/internal/auth"
	"estatehub.org/internal/client"
	"estatehub.org/internal/community"
)

func main() {
	var (
		addr    = flag.String("addr", envOr("HOA_API_URL", "http://localhost:8080"), "API base URL")
		secret  = flag.String("secret", os.Getenv("HOA_AUTH_SECRET"), "Token signing secret")
		tenant  = flag.String("tenant", "01J0000000000000000000TEN1", "Tenant to act in")
		sticker = flag.String("sticker", "01J0000000000000000000STK1", "Requested sticker to approve")
		permit  = flag.String("permit", "01J0000000000000000000PMT1", "Pending permit to approve")
	)
	flag.Parse()

	tokens, err := auth.NewTokens(*secret, auth.WithIssuer(envOr("HOA_AUTH_ISSUER", "estatehub")))
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	officer, _, err := tokens.Issue("smoke-officer", community.RoleAdminOfficer, *tenant, 5*time.Minute)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	c, err := client.New(*addr, client.WithToken(officer))
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := c.DecideSticker(ctx, client.StickerAction{
		StickerID:  *sticker,
		Action:     "approve",
		ExpiryDate: time.Now().AddDate(1, 0, 0).Format("2006-01-02"),
	})
	if err != nil {
		log.Fatalf("approve sticker: %v", err)
	}
	if st.NewStatus != string(community.StickerActive) || st.RFIDCode == "" {
		log.Fatalf("unexpected sticker decision: %+v", st)
	}
	if _, err := c.DecideSticker(ctx, client.StickerAction{StickerID: *sticker, Action: "reject"}); !errors.Is(err, client.ErrRejected) {
		log.Fatalf("second decision on an active sticker must be rejected, got %v", err)
	}
	v, err := c.VerifySticker(ctx, st.RFIDCode)
	if err != nil || !v.Valid {
		log.Fatalf("verify sticker code: valid=%v err=%v", v.Valid, err)
	}

	fee := decimal.RequireFromString("1500.00")
	p, err := c.DecidePermit(ctx, client.PermitAction{PermitID: *permit, Action: "approve", RoadFeeAmount: &fee})
	if err != nil {
		log.Fatalf("approve permit: %v", err)
	}
	p, err = c.DecidePermit(ctx, client.PermitAction{PermitID: *permit, Action: "mark_paid", PaymentMethod: "cash"})
	if err != nil {
		log.Fatalf("mark permit paid: %v", err)
	}
	if p.NewStatus != string(community.PermitApproved) || !p.RoadFeePaid {
		log.Fatalf("mark_paid must keep status and set the fee flag: %+v", p)
	}

	fmt.Printf("smoke test passed: sticker=%s permit=%s\n", st.StickerID, p.PermitID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
