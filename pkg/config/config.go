package config

import (
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	prefix      = "mailmount"
	tableFormat = `mailmount is configured via the environment. The following environment
variables can be used:

KEY	DEFAULT	REQUIRED	DESCRIPTION
{{range .}}{{usage_key .}}	{{usage_default .}}	{{usage_required .}}	{{usage_description .}}
{{end}}`
)

var (
	// Version of this build, set by main
	Version = ""

	// BuildDate for this build, set by main
	BuildDate = ""
)

// Root wraps all other configurations.
type Root struct {
	LogLevel string `required:"true" default:"info" desc:"debug, info, warn, or error"`
	Lua      Lua
	Web      Web
	Storage  Storage
	Session  Session
	Sync     Sync
}

// Lua contains the Lua extension host configuration.
type Lua struct {
	Path string `required:"false" default:"mailmount.lua" desc:"Lua script path"`
}

// Web contains the HTTP server configuration.
type Web struct {
	Addr           string `required:"true" default:"127.0.0.1:3001" desc:"Web server IP4 host:port"`
	BasePath       string `default:"" desc:"Base path prefix for the JSON API"`
	MonitorHistory int    `required:"true" default:"30" desc:"Monitor remembered messages"`
}

// Storage contains the local store configuration.
type Storage struct {
	Type   string            `required:"true" default:"file" desc:"Storage impl: file or memory"`
	Params map[string]string `default:"path:data" desc:"Storage impl parameters, see docs."`
}

// Session contains the IMAP and SMTP client session configuration.
type Session struct {
	ConnectTimeout time.Duration `required:"true" default:"60s" desc:"Connection establish timeout"`
	AuthTimeout    time.Duration `required:"true" default:"30s" desc:"Authentication timeout"`
	ReadTimeout    time.Duration `required:"true" default:"2m" desc:"Per message fetch timeout"`
	HelloName      string        `required:"true" default:"localhost" desc:"SMTP EHLO name"`
	TLSInsecure    bool          `default:"false" desc:"Skip TLS certificate verification"`
	PlaintextAuth  bool          `default:"false" desc:"Permit SMTP AUTH without TLS when STARTTLS is not offered"`
}

// Sync contains defaults applied to sync and listing requests.
type Sync struct {
	Folder    string `required:"true" default:"INBOX" desc:"Default folder to sync"`
	Limit     int    `required:"true" default:"50" desc:"Default messages per sync"`
	ListLimit int    `required:"true" default:"100" desc:"Default unified listing size"`
}

// Process loads and parses configuration from the environment.
func Process() (*Root, error) {
	c := &Root{}
	err := envconfig.Process(prefix, c)
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
