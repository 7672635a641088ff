// ABOUTME: Mailer that sends a plain-text plan summary over SMTP
// ABOUTME: Rendering a styled document is out of scope; the body lists days, activities and budget

package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/itinerary"
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer implements agent.Mailer.
type Mailer struct {
	cfg  Config
	send sendFunc
}

var _ agent.Mailer = (*Mailer)(nil)

// New creates a Mailer. smtp.SendMail upgrades to STARTTLS when offered.
func New(cfg Config) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("mail: host and from: %w", agent.ErrUnavailable)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Mailer{cfg: cfg, send: smtp.SendMail}, nil
}

// SendPlan mails a summary of plan to to.
func (m *Mailer) SendPlan(ctx context.Context, to string, trip itinerary.TripContext, plan *itinerary.Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("recipient %q: %w", to, err)
	}
	msg := m.compose(rcpt.Address, trip, plan)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, []string{rcpt.Address}, msg); err != nil {
		return fmt.Errorf("sending plan to %s: %w", rcpt.Address, err)
	}
	return nil
}

func (m *Mailer) compose(to string, trip itinerary.TripContext, plan *itinerary.Plan) []byte {
	var b bytes.Buffer
	subject := fmt.Sprintf("[여행 계획] %s 여행 계획", trip.Destination)
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(Summary(trip, plan), "\n", "\r\n"))
	return b.Bytes()
}

// Summary renders plan as plain text.
func Summary(trip itinerary.TripContext, plan *itinerary.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", trip.Destination, trip.Duration)
	if plan.DepartureDate != "" {
		fmt.Fprintf(&b, "Departure: %s\n", plan.DepartureDate)
	}
	for _, day := range plan.Itinerary {
		fmt.Fprintf(&b, "\nDay %d\n", day.Day)
		for _, a := range day.Activities {
			fmt.Fprintf(&b, "  %s  %s @ %s", a.Time, a.Description, a.Location)
			if a.Duration != "" {
				fmt.Fprintf(&b, " (%s)", a.Duration)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\nBudget\n")
	for _, c := range plan.Budget.Categories {
		fmt.Fprintf(&b, "  %-15s %.0f\n", c.Name, c.Estimated)
	}
	fmt.Fprintf(&b, "  %-15s %.0f\n", "total", plan.Budget.Total)
	if len(plan.Tips) > 0 {
		b.WriteString("\nTips\n")
		for _, t := range plan.Tips {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
	}
	return b.String()
}
