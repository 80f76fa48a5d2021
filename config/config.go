package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyBindAddress    = "server.bind"
	KeyHost           = "server.host"
	KeyTLS            = "server.tls"
	KeyCADir          = "ca.dir"
	KeyUpstreamRoot   = "ca.upstream_root"
	KeyKeyBits        = "ca.key_bits"
	KeyCADays         = "ca.days"
	KeyVisitorDays    = "visitor.days"
	KeyVisitorCall    = "visitor.callsign"
	KeyVisitorEmail   = "visitor.email"
	KeyScratchDir     = "visitor.scratch_dir"
	KeyBackend        = "toolkit.backend"
	KeyOpenSSL        = "toolkit.openssl"
	KeyToolkitTimeout = "toolkit.timeout"
	KeyDBURL          = "store.dburl"
	KeyTrustQueryDN   = "auth.trust_query_dn"
)

// EnvPrefix prefix of environment variables, HAMBOARD_SERVER_BIND overrides server.bind
const EnvPrefix = "hamboard"

var EnvKeyReplacer = strings.NewReplacer(".", "_")

func init() {
	SetDefaults(viper.GetViper())
}

// SetDefaults register default values
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBindAddress, "127.0.0.1:8000")
	v.SetDefault(KeyHost, "localhost")
	v.SetDefault(KeyTLS, true)
	v.SetDefault(KeyCADir, "ca")
	v.SetDefault(KeyUpstreamRoot, "/etc/hamboard/upstream-root.pem")
	v.SetDefault(KeyKeyBits, 1024)
	v.SetDefault(KeyCADays, 3650)
	v.SetDefault(KeyVisitorDays, 7)
	v.SetDefault(KeyVisitorCall, "FAKE")
	v.SetDefault(KeyVisitorEmail, "visitor@example.invalid")
	v.SetDefault(KeyScratchDir, os.TempDir())
	v.SetDefault(KeyBackend, "openssl")
	v.SetDefault(KeyOpenSSL, "openssl")
	v.SetDefault(KeyToolkitTimeout, 30*time.Second)
	v.SetDefault(KeyDBURL, "sqlite://hamboard.db")
	v.SetDefault(KeyTrustQueryDN, false)
}

// BindFlag bind command line flag to config key
func BindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func BindAddress() string  { return viper.GetString(KeyBindAddress) }
func Host() string         { return viper.GetString(KeyHost) }
func TLS() bool            { return viper.GetBool(KeyTLS) }
func CADir() string        { return viper.GetString(KeyCADir) }
func UpstreamRoot() string { return viper.GetString(KeyUpstreamRoot) }
func KeyBits() int         { return viper.GetInt(KeyKeyBits) }
func CADays() int          { return viper.GetInt(KeyCADays) }

func VisitorDays() int        { return viper.GetInt(KeyVisitorDays) }
func VisitorCallsign() string { return viper.GetString(KeyVisitorCall) }
func VisitorEmail() string    { return viper.GetString(KeyVisitorEmail) }
func ScratchDir() string      { return viper.GetString(KeyScratchDir) }

func Backend() string               { return viper.GetString(KeyBackend) }
func OpenSSLBinary() string         { return viper.GetString(KeyOpenSSL) }
func ToolkitTimeout() time.Duration { return viper.GetDuration(KeyToolkitTimeout) }
func DBURL() string                 { return viper.GetString(KeyDBURL) }
func TrustQueryDN() bool            { return viper.GetBool(KeyTrustQueryDN) }
