package config

import (
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	prefix      = "aliasrelay"
	tableFormat = `aliasrelay is configured via the environment. The following environment
variables can be used:

KEY	DEFAULT	REQUIRED	DESCRIPTION
{{range .}}{{usage_key .}}	{{usage_default .}}	{{usage_required .}}	{{usage_description .}}
{{end}}`
)

// Transport kinds understood by the bootstrap.
const (
	TransportSMTP = "smtp"
	TransportSES  = "ses"
	TransportLog  = "log"
)

var (
	// Version of this build, set by main
	Version = ""

	// BuildDate for this build, set by main
	BuildDate = ""
)

// Root wraps all other configurations.
type Root struct {
	LogLevel   string `required:"true" default:"info" desc:"debug, info, warn, or error"`
	SMTP       SMTP
	Web        Web
	Staging    Staging
	Directory  Directory
	Transport  Transport
	AutoAccept AutoAccept
}

// SMTP contains the intake listener configuration.
type SMTP struct {
	Addr            string        `required:"true" default:"0.0.0.0:2500" desc:"SMTP intake IP4 host:port"`
	Domain          string        `required:"true" default:"aliasrelay" desc:"HELO domain"`
	AcceptDomains   []string      `desc:"Domains to accept mail for, all if empty"`
	MaxIdle         time.Duration `required:"true" default:"300s" desc:"Idle network timeout"`
	MaxMessageBytes int64         `required:"true" default:"10240000" desc:"Maximum message size"`
	Debug           bool          `ignored:"true"`
}

// Web contains the status HTTP server configuration.
type Web struct {
	Addr           string `default:"0.0.0.0:9000" desc:"Status server IP4 host:port, empty disables"`
	MonitorHistory int    `required:"true" default:"30" desc:"Remembered dispositions"`
}

// Staging contains the staging store configuration.
type Staging struct {
	Type       string        `required:"true" default:"file" desc:"Staging store type: file, memory"`
	Path       string        `required:"true" default:"/tmp/aliasrelay" desc:"Staging directory"`
	ScanPeriod time.Duration `required:"true" default:"1m" desc:"Backlog scan period, 0 disables"`
	OrphanAge  time.Duration `required:"true" default:"1h" desc:"Age after which unmarked staged messages are reported"`
}

// Directory contains the account directory client configuration.
type Directory struct {
	URL     string        `required:"true" default:"http://localhost:8080/" desc:"Account directory base URL"`
	Token   string        `desc:"Bearer token for the account directory"`
	Timeout time.Duration `required:"true" default:"30s" desc:"Directory lookup timeout"`
}

// Transport contains the outbound transport configuration.
type Transport struct {
	Kind               string        `required:"true" default:"smtp" desc:"Outbound transport: smtp, ses, log"`
	Timeout            time.Duration `required:"true" default:"60s" desc:"Outbound send timeout"`
	SMTPAddr           string        `default:"localhost:25" desc:"Relay host:port for smtp transport"`
	SMTPUsername       string        `desc:"Relay PLAIN auth username"`
	SMTPPassword       string        `desc:"Relay PLAIN auth password"`
	EnvelopeFrom       string        `default:"relay@localhost" desc:"MAIL FROM address for forwarded mail"`
	SESRegion          string        `desc:"AWS region for ses transport"`
	SESAccessKeyID     string        `desc:"AWS access key id, default credential chain if empty"`
	SESSecretAccessKey string        `desc:"AWS secret access key"`
}

// AutoAccept contains the registration auto-accept configuration.
type AutoAccept struct {
	Phrase      string        `required:"true" default:"confirm your email address" desc:"Subject phrase selecting auto-accept"`
	LinkPattern string        `required:"true" default:"(?i)confirm|verify" desc:"Regexp matching the confirmation link"`
	Timeout     time.Duration `required:"true" default:"30s" desc:"Confirmation request timeout"`
}

// Process loads and parses configuration from the environment.
func Process() (*Root, error) {
	c := &Root{}
	err := envconfig.Process(prefix, c)
	c.LogLevel = strings.ToLower(c.LogLevel)
	return c, err
}

// Usage prints out the envconfig usage to Stderr.
func Usage() {
	tabs := tabwriter.NewWriter(os.Stderr, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(prefix, &Root{}, tabs, tableFormat); err != nil {
		log.Fatalf("Unable to parse env config: %v", err)
	}
	tabs.Flush()
}
