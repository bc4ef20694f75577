package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Custody request subjects. The custody service replies with CustodyReply.
const (
	CustodyDebitSubject  = "vamm.custody.debit"
	CustodyCreditSubject = "vamm.custody.credit"
)

// CustodyRequest asks the custody service to move collateral.
type CustodyRequest struct {
	Owner     string `json:"owner"`
	BankIndex uint16 `json:"bank_index"`
	Amount    int64  `json:"amount"`
}

type CustodyReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NATSCustody moves collateral through a request/reply custody service.
type NATSCustody struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNATSCustody(nc *nats.Conn, timeout time.Duration) *NATSCustody {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NATSCustody{nc: nc, timeout: timeout}
}

func (c *NATSCustody) Debit(ctx context.Context, owner string, bankIndex uint16, amount int64) error {
	return c.request(ctx, CustodyDebitSubject, CustodyRequest{Owner: owner, BankIndex: bankIndex, Amount: amount})
}

func (c *NATSCustody) Credit(ctx context.Context, recipient string, bankIndex uint16, amount int64) error {
	return c.request(ctx, CustodyCreditSubject, CustodyRequest{Owner: recipient, BankIndex: bankIndex, Amount: amount})
}

func (c *NATSCustody) request(ctx context.Context, subject string, req CustodyRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("custody %s: %w", subject, err)
	}
	var reply CustodyReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("custody reply: %w", err)
	}
	if !reply.OK {
		if reply.Error == "" {
			reply.Error = "refused"
		}
		return errors.New(reply.Error)
	}
	return nil
}
