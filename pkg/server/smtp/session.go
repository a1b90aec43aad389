package smtp

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/inbucket/aliasrelay/pkg/policy"
	"github.com/inbucket/aliasrelay/pkg/relay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	errBadRecipient = &gosmtp.SMTPError{
		Code:         501,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
		Message:      "Bad recipient address syntax",
	}
	errRelayDenied = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
		Message:      "Relay not permitted",
	}
	errTooManyRecipients = &gosmtp.SMTPError{
		Code:         452,
		EnhancedCode: gosmtp.EnhancedCode{4, 5, 3},
		Message:      "Only one recipient per message",
	}
	errNoRecipient = &gosmtp.SMTPError{
		Code:         503,
		EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
		Message:      "Need RCPT before DATA",
	}
	errStagingFailed = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "Failed to store message",
	}
)

var sessionSeq atomic.Int64

// backend creates a session per connection.
type backend struct {
	server *Server
}

func (b *backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	id := sessionSeq.Add(1)
	logger := log.Logger.Hook(logHook{}).With().
		Str("module", "smtp").
		Str("remote", c.Conn().RemoteAddr().String()).
		Int64("session", id).Logger()
	logger.Info().Msg("Starting SMTP session")
	sessionsTotal.Inc()

	return &session{
		server:       b.server,
		logger:       logger,
		remoteHost:   c.Conn().RemoteAddr().String(),
		remoteDomain: c.Hostname(),
	}, nil
}

// session holds the state of a single SMTP transaction.
type session struct {
	server       *Server
	logger       zerolog.Logger
	remoteHost   string
	remoteDomain string
	from         string
	recipient    *policy.Recipient
}

func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = from
	s.logger.Debug().Str("from", from).Msg("Mail from")
	return nil
}

// Rcpt accepts exactly one recipient, whose local part names the alias.
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if s.recipient != nil {
		rejectedTotal.WithLabelValues("recipients").Inc()
		s.logger.Warn().Str("to", to).Msg("Rejecting additional recipient")
		return errTooManyRecipients
	}
	recip, err := s.server.addrPolicy.NewRecipient(to)
	if err != nil {
		rejectedTotal.WithLabelValues("syntax").Inc()
		s.logger.Warn().Str("to", to).Err(err).Msg("Bad address as RCPT arg")
		return errBadRecipient
	}
	if !recip.ShouldAccept() {
		rejectedTotal.WithLabelValues("domain").Inc()
		s.logger.Warn().Str("to", to).Msg("Rejecting recipient domain")
		return errRelayDenied
	}
	s.recipient = recip
	s.logger.Debug().Str("to", to).Str("alias", recip.Alias).Msg("Recipient added")
	return nil
}

// Data stages the message, then hands it to the pipeline.  The reply is only sent once the
// message is durable.
func (s *session) Data(r io.Reader) error {
	if s.recipient == nil {
		return errNoRecipient
	}

	id := uuid.NewString()
	path := s.server.store.Path(id)
	received := fmt.Sprintf("Received: from %s ([%s]) by %s for <%s>; %s\r\n",
		s.remoteDomain, s.remoteHost, s.server.config.Domain, s.recipient.Address,
		time.Now().Format(time.RFC1123Z))

	size, err := s.server.store.Write(path, io.MultiReader(strings.NewReader(received), r))
	if err != nil {
		var smtpErr *gosmtp.SMTPError
		if errors.As(err, &smtpErr) {
			// Protocol limits such as the message size come from go-smtp itself.
			rejectedTotal.WithLabelValues("data").Inc()
			s.logger.Warn().Err(err).Msg("Rejected message data")
			return smtpErr
		}
		s.logger.Error().Err(err).Str("path", path).Msg("Failed to stage message")
		return errStagingFailed
	}

	env := relay.Envelope{AliasID: s.recipient.Alias, RawAddress: s.recipient.Address}
	s.server.intake.HandleIntake(env, path, func() {
		s.logger.Debug().Str("path", path).Msg("Intake acknowledged")
	})
	receivedTotal.Inc()
	s.logger.Info().Str("alias", env.AliasID).Str("id", id).Int64("size", size).
		Msg("Message staged")

	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.recipient = nil
}

func (s *session) Logout() error {
	s.logger.Debug().Msg("Closing SMTP session")
	return nil
}
