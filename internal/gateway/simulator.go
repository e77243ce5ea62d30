package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Simulator is an in-process Gateway implementation used by the server's
// default wiring, the simulation client and the test suite. It builds the
// same XML payloads a real gateway round trip would produce so that the
// redaction and audit paths are exercised end to end.
type Simulator struct {
	Host          string
	Client        string
	Password      string
	UseCV2AVS     bool
	CaptureMethod string

	MinLatency  int // in milliseconds
	MaxLatency  int
	DeclineRate float64 // 0-1, probability of a declined response
	ErrorRate   float64 // 0-1, probability of an error response
}

// NewSimulator creates a simulated gateway with realistic latency and a small
// rate of declines and errors.
func NewSimulator(host, client, password string, useCV2AVS bool, captureMethod string) *Simulator {
	return &Simulator{
		Host:          host,
		Client:        client,
		Password:      password,
		UseCV2AVS:     useCV2AVS,
		CaptureMethod: captureMethod,
		MinLatency:    5,
		MaxLatency:    40,
		DeclineRate:   0.05,
		ErrorRate:     0.02,
	}
}

// Error statuses the simulator can produce, with protocol reason strings.
var simulatedErrors = []struct {
	status int
	reason string
}{
	{19, "Cannot fulfill transaction"},
	{24, "Invalid expiry date"},
	{53, "Transaction type not supported"},
}

func (s *Simulator) Auth(ctx context.Context, req Request) (*Response, error) {
	return s.process(ctx, Auth, req)
}

func (s *Simulator) Pre(ctx context.Context, req Request) (*Response, error) {
	return s.process(ctx, Pre, req)
}

func (s *Simulator) Fulfill(ctx context.Context, req Request) (*Response, error) {
	return s.process(ctx, Fulfill, req)
}

func (s *Simulator) Refund(ctx context.Context, req Request) (*Response, error) {
	return s.process(ctx, Refund, req)
}

func (s *Simulator) TxnRefund(ctx context.Context, req Request) (*Response, error) {
	return s.process(ctx, TxnRefund, req)
}

func (s *Simulator) Cancel(ctx context.Context, txnReference string) (*Response, error) {
	return s.process(ctx, Cancel, Request{TxnReference: txnReference})
}

// process simulates a single gateway round trip: latency, then an outcome
// rolled from the configured decline and error rates.
func (s *Simulator) process(ctx context.Context, method string, req Request) (*Response, error) {
	logger := log.With().
		Str("gateway_host", s.Host).
		Str("method", method).
		Str("merchant_reference", req.MerchantReference).
		Logger()

	logger.Debug().Msg("sending request to simulated gateway")

	// Simulate random network latency
	latency := s.MinLatency
	if s.MaxLatency > s.MinLatency {
		latency = rand.Intn(s.MaxLatency-s.MinLatency+1) + s.MinLatency
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(latency) * time.Millisecond):
	}

	requestXML := s.buildRequestXML(method, req)

	resp := &Response{
		MerchantReference: req.MerchantReference,
		RequestXML:        requestXML,
	}

	roll := rand.Float64()
	switch {
	case roll < s.ErrorRate:
		e := simulatedErrors[rand.Intn(len(simulatedErrors))]
		resp.Outcome = OutcomeError
		resp.Status = e.status
		resp.Reason = e.reason
	case roll < s.ErrorRate+s.DeclineRate:
		resp.Outcome = OutcomeDeclined
		resp.Status = StatusDeclined
		resp.Reason = "DECLINED"
	default:
		resp.Outcome = OutcomeSuccessful
		resp.Status = StatusAccepted
		resp.Reason = "ACCEPTED"
		resp.Reference = uuid.New().String()
		resp.AuthCode = fmt.Sprintf("A%06d", rand.Intn(1000000))
	}

	resp.ResponseXML = buildResponseXML(resp)

	logger.Info().
		Int("status", resp.Status).
		Str("reason", resp.Reason).
		Str("gateway_reference", resp.Reference).
		Int("latency_ms", latency).
		Msg("simulated gateway response")

	return resp, nil
}

// buildRequestXML renders the outbound payload. Card-based methods produce a
// CardTxn element; fulfill, txn_refund, cancel and continuing-authority calls
// produce a HistoricTxn element referencing a prior transaction.
func (s *Simulator) buildRequestXML(method string, req Request) string {
	var b strings.Builder
	b.WriteString("<Request>")
	b.WriteString("<Authentication>")
	fmt.Fprintf(&b, "<client>%s</client>", s.Client)
	fmt.Fprintf(&b, "<password>%s</password>", s.Password)
	b.WriteString("</Authentication>")
	b.WriteString("<Transaction>")

	switch {
	case req.CardNumber != "":
		b.WriteString("<CardTxn>")
		fmt.Fprintf(&b, "<method>%s</method>", method)
		b.WriteString("<Card>")
		fmt.Fprintf(&b, "<pan>%s</pan>", req.CardNumber)
		fmt.Fprintf(&b, "<expirydate>%s</expirydate>", req.ExpiryDate)
		if s.UseCV2AVS {
			b.WriteString("<Cv2Avs>")
			if req.CCV != "" {
				fmt.Fprintf(&b, "<cv2>%s</cv2>", req.CCV)
			}
			writeAddressLines(&b, req)
			b.WriteString("</Cv2Avs>")
		} else if req.CCV != "" {
			fmt.Fprintf(&b, "<cv2>%s</cv2>", req.CCV)
		}
		b.WriteString("</Card>")
		b.WriteString("</CardTxn>")
	case req.PreviousTxnReference != "":
		b.WriteString("<ContAuthTxn>")
		fmt.Fprintf(&b, "<method>%s</method>", method)
		fmt.Fprintf(&b, "<reference>%s</reference>", req.PreviousTxnReference)
		b.WriteString("</ContAuthTxn>")
	default:
		b.WriteString("<HistoricTxn>")
		fmt.Fprintf(&b, "<method>%s</method>", method)
		fmt.Fprintf(&b, "<reference>%s</reference>", req.TxnReference)
		if req.AuthCode != "" {
			fmt.Fprintf(&b, "<authcode>%s</authcode>", req.AuthCode)
		}
		b.WriteString("</HistoricTxn>")
	}

	b.WriteString("<TxnDetails>")
	if req.MerchantReference != "" {
		fmt.Fprintf(&b, "<merchantreference>%s</merchantreference>", req.MerchantReference)
	}
	if method != Cancel {
		fmt.Fprintf(&b, "<amount currency=\"%s\">%.2f</amount>", req.Currency, req.Amount)
	}
	fmt.Fprintf(&b, "<capturemethod>%s</capturemethod>", s.CaptureMethod)
	b.WriteString("</TxnDetails>")

	b.WriteString("</Transaction>")
	b.WriteString("</Request>")
	return b.String()
}

func writeAddressLines(b *strings.Builder, req Request) {
	lines := []string{req.AddressLine1, req.AddressLine2, req.AddressLine3, req.AddressLine4}
	for i, line := range lines {
		if line != "" {
			fmt.Fprintf(b, "<street_address%d>%s</street_address%d>", i+1, line, i+1)
		}
	}
	if req.Postcode != "" {
		fmt.Fprintf(b, "<postcode>%s</postcode>", req.Postcode)
	}
}

func buildResponseXML(resp *Response) string {
	var b strings.Builder
	b.WriteString("<Response>")
	fmt.Fprintf(&b, "<status>%d</status>", resp.Status)
	fmt.Fprintf(&b, "<reason>%s</reason>", resp.Reason)
	if resp.Reference != "" {
		fmt.Fprintf(&b, "<datacash_reference>%s</datacash_reference>", resp.Reference)
	}
	if resp.MerchantReference != "" {
		fmt.Fprintf(&b, "<merchantreference>%s</merchantreference>", resp.MerchantReference)
	}
	if resp.AuthCode != "" {
		fmt.Fprintf(&b, "<authcode>%s</authcode>", resp.AuthCode)
	}
	fmt.Fprintf(&b, "<time>%d</time>", time.Now().Unix())
	b.WriteString("</Response>")
	return b.String()
}
