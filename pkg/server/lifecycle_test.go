package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gorilla/mux"
	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/extension"
	"github.com/inbucket/aliasrelay/pkg/relay"
	"github.com/inbucket/aliasrelay/pkg/rest/client"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/inbucket/aliasrelay/pkg/storage/mem"
	"github.com/inbucket/aliasrelay/pkg/transport/logsink"
	"github.com/inbucket/aliasrelay/pkg/transport/ses"
	smtpsender "github.com/inbucket/aliasrelay/pkg/transport/smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMessage = "From: Shop <news@shop.example>\r\n" +
	"To: shop@relay.test\r\n" +
	"Subject: Weekly deals\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Deals inside.\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Deals inside.</p>\r\n" +
	"--b1--\r\n"

func init() {
	storage.Constructors["memory"] = mem.New
}

func testConfig(t *testing.T) *config.Root {
	t.Helper()
	router := mux.NewRouter()
	router.Path("/aliases/{alias}").Methods("GET").HandlerFunc(
		func(w http.ResponseWriter, req *http.Request) {
			if mux.Vars(req)["alias"] != "shop" {
				http.NotFound(w, req)
				return
			}
			_, _ = w.Write([]byte(`{"forwardAddress":"owner@example.com"}`))
		})
	dir := httptest.NewServer(router)
	t.Cleanup(dir.Close)

	return &config.Root{
		LogLevel: "info",
		SMTP: config.SMTP{
			Addr:            "127.0.0.1:0",
			Domain:          "relay.test",
			MaxIdle:         5 * time.Second,
			MaxMessageBytes: 1 << 20,
		},
		Web:     config.Web{Addr: "127.0.0.1:0", MonitorHistory: 10},
		Staging: config.Staging{Type: "memory"},
		Directory: config.Directory{
			URL:     dir.URL,
			Timeout: 5 * time.Second,
		},
		Transport: config.Transport{
			Kind:         config.TransportLog,
			Timeout:      5 * time.Second,
			SMTPAddr:     "localhost:25",
			EnvelopeFrom: "relay@relay.test",
		},
		AutoAccept: config.AutoAccept{
			Phrase:      "confirm your email address",
			LinkPattern: "(?i)confirm",
			Timeout:     5 * time.Second,
		},
	}
}

func TestNewSenderKinds(t *testing.T) {
	conf := testConfig(t)

	conf.Transport.Kind = config.TransportLog
	s, err := NewSender(context.Background(), conf)
	require.NoError(t, err)
	assert.IsType(t, &logsink.Sender{}, s)

	conf.Transport.Kind = config.TransportSMTP
	s, err = NewSender(context.Background(), conf)
	require.NoError(t, err)
	assert.IsType(t, &smtpsender.Sender{}, s)

	conf.Transport.Kind = config.TransportSES
	conf.Transport.SESRegion = "us-east-1"
	conf.Transport.SESAccessKeyID = "AKIDEXAMPLE"
	conf.Transport.SESSecretAccessKey = "secret"
	s, err = NewSender(context.Background(), conf)
	require.NoError(t, err)
	assert.IsType(t, &ses.Sender{}, s)

	conf.Transport.Kind = "carrier-pigeon"
	_, err = NewSender(context.Background(), conf)
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestNewPipelineStartupFaults(t *testing.T) {
	tcs := []struct {
		name   string
		modify func(*config.Root)
	}{
		{"unknown staging", func(c *config.Root) { c.Staging.Type = "tape" }},
		{"bad directory url", func(c *config.Root) { c.Directory.URL = "ftp://dir.example" }},
		{"bad smtp transport", func(c *config.Root) {
			c.Transport.Kind = config.TransportSMTP
			c.Transport.SMTPAddr = ""
		}},
		{"bad link pattern", func(c *config.Root) { c.AutoAccept.LinkPattern = "(" }},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			conf := testConfig(t)
			tc.modify(conf)
			_, err := NewPipeline(context.Background(), conf, extension.NewHost())
			assert.Error(t, err)
		})
	}
}

func TestProdListenFailure(t *testing.T) {
	conf := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	shutdown := make(chan bool)
	first, err := Prod(ctx, shutdown, conf)
	require.NoError(t, err)
	first.Start(ctx)
	defer func() {
		close(shutdown)
		cancel()
		first.Drain()
	}()

	conf.SMTP.Addr = first.SMTPServer.Addr().String()
	_, err = Prod(context.Background(), make(chan bool), conf)
	assert.Error(t, err)
}

func TestProdWebListenFailureReleasesSMTP(t *testing.T) {
	blocker, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = blocker.Close() }()

	// Reserve an SMTP port, then free it so Prod can bind it.
	reserved, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	smtpAddr := reserved.Addr().String()
	require.NoError(t, reserved.Close())

	conf := testConfig(t)
	conf.SMTP.Addr = smtpAddr
	conf.Web.Addr = blocker.Addr().String()
	_, err = Prod(context.Background(), make(chan bool), conf)
	require.Error(t, err)

	// The SMTP address was released when startup was abandoned.
	l, err := net.Listen("tcp4", smtpAddr)
	require.NoError(t, err)
	_ = l.Close()
}

func TestProdRelaysEndToEnd(t *testing.T) {
	conf := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	shutdown := make(chan bool)
	services, err := Prod(ctx, shutdown, conf)
	require.NoError(t, err)
	disposed := services.ExtHost.Events.AfterMessageDisposed.AsyncTestListener("test", 1)
	services.Start(ctx)

	// Deliver a message for the alias through the intake listener.
	c, err := gosmtp.Dial(services.SMTPServer.Addr().String())
	require.NoError(t, err)
	require.NoError(t, c.Hello("client.test"))
	require.NoError(t, c.Mail("news@shop.example", nil))
	require.NoError(t, c.Rcpt("shop+deals@relay.test", nil))
	w, err := c.Data()
	require.NoError(t, err)
	_, err = w.Write([]byte(testMessage))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, c.Quit())

	got, err := disposed()
	require.NoError(t, err)
	assert.Equal(t, relay.OutcomeForwarded, got.Outcome)
	assert.Equal(t, "shop", got.AliasID)
	assert.Equal(t, "owner@example.com", got.ForwardAddress)
	assert.Equal(t, "Weekly deals", got.Subject)
	assert.NotEmpty(t, got.MessageID)

	// The staged file is removed after a successful forward.
	count := 0
	require.NoError(t, services.Store.Visit(func(storage.Entry) bool {
		count++
		return true
	}))
	assert.Zero(t, count)

	// The disposition is visible through the status API.
	services.ExtHost.Events.AfterMessageDisposed.Wait()
	services.MsgHub.Sync()
	sc, err := client.New("http://"+services.WebServer.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	status, err := sc.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status.Recent, 1)
	assert.Equal(t, got.ID, status.Recent[0].ID)

	close(shutdown)
	cancel()
	services.Drain()
}
