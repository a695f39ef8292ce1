// Package seed generates realistic raw events for every supported source,
// plus attack scenarios that trip the correlation rules.
package seed

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/centrallog/internal/correlation"
	"github.com/telhawk-systems/centrallog/internal/models"
)

// Scenario names accepted by Generator.Scenario.
const (
	ScenarioBruteForce  = "brute-force"
	ScenarioDistributed = "distributed"
	ScenarioRecovery    = "recovery"
)

var Scenarios = []string{ScenarioBruteForce, ScenarioDistributed, ScenarioRecovery}

type Generator struct {
	f       *gofakeit.Faker
	now     func() time.Time
	tenants []string
	spread  time.Duration
}

// New returns a generator. A zero seed picks a random one; the same
// non-zero seed always yields the same events for the same clock.
func New(seed int64, tenants ...string) *Generator {
	if len(tenants) == 0 {
		tenants = []string{"acme"}
	}
	return &Generator{
		f:       gofakeit.New(seed),
		now:     time.Now,
		tenants: tenants,
	}
}

func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithSpread places background events up to d before now.
func (g *Generator) WithSpread(d time.Duration) *Generator {
	g.spread = d
	return g
}

func (g *Generator) at() time.Time {
	t := g.now().UTC()
	if g.spread > 0 {
		t = t.Add(-time.Duration(g.f.Float64Range(0, float64(g.spread))))
	}
	return t
}

func (g *Generator) tenant() string {
	return g.f.RandomString(g.tenants)
}

// Events returns n events cycling through every source.
func (g *Generator) Events(n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := range n {
		out = append(out, g.Event(models.Sources[i%len(models.Sources)]))
	}
	return out
}

// Event returns one raw event for source.
func (g *Generator) Event(source models.Source) map[string]any {
	tenant := g.tenant()
	ts := g.at()

	var ev map[string]any
	switch source {
	case models.SourceFirewall:
		ev = g.firewall(ts)
	case models.SourceNetwork:
		ev = g.network(ts)
	case models.SourceCrowdStrike:
		ev = g.crowdstrike(ts)
	case models.SourceAWS:
		ev = g.aws(ts)
	case models.SourceM365:
		ev = g.m365(ts)
	case models.SourceAD:
		ev = g.ad(ts)
	default:
		source = models.SourceAPI
		ev = g.api(ts, g.f.RandomString([]string{
			correlation.EventLoginSuccess, correlation.EventLoginFailed, "logout", "file_access", "api_call",
		}), g.f.Username(), g.f.IPv4Address())
	}
	ev["tenant"] = tenant
	ev["source"] = string(source)
	return ev
}

func (g *Generator) api(ts time.Time, eventType, user, ip string) map[string]any {
	return map[string]any{
		"event_type":  eventType,
		"user":        user,
		"ip":          ip,
		"@timestamp":  ts.Format(time.RFC3339Nano),
		"method":      g.f.HTTPMethod(),
		"url":         "/" + g.f.Word() + "/" + g.f.Word(),
		"status_code": g.f.RandomInt([]int{200, 201, 204, 400, 401, 403, 404, 500}),
		"host":        g.f.DomainName(),
	}
}

// syslogStamp renders the classic yearless prefix in UTC.
func syslogStamp(ts time.Time) string {
	return ts.UTC().Format(time.Stamp)
}

func (g *Generator) firewall(ts time.Time) map[string]any {
	action := g.f.RandomString([]string{"allow", "deny", "block", "permit", "alert"})
	line := fmt.Sprintf("<134>%s fw%02d action=%s src=%s dst=%s src_port=%d dst_port=%d proto=%s rule=%s user=%s",
		syslogStamp(ts), g.f.Number(1, 9), action,
		g.f.IPv4Address(), g.f.IPv4Address(),
		g.f.Number(1024, 65535), g.f.RandomInt([]int{22, 53, 80, 443, 3389, 8080}),
		g.f.RandomString([]string{"tcp", "udp"}),
		g.f.RandomString([]string{"default-deny", "allow-web", "block-smb", "geo-block"}),
		g.f.Username(),
	)
	return map[string]any{"raw": line}
}

func (g *Generator) network(ts time.Time) map[string]any {
	event := g.f.RandomString([]string{"link_up", "link_down", "port_security", "dhcp_snooping", "config_change"})
	line := fmt.Sprintf("<189>%s rtr%02d event=%s if=ge-0/0/%d mac=%s src=%s status=%s",
		syslogStamp(ts), g.f.Number(1, 9), event, g.f.Number(0, 47),
		g.f.MacAddress(), g.f.IPv4Address(),
		g.f.RandomString([]string{"up", "down", "err-disabled"}),
	)
	return map[string]any{"raw": line}
}

func (g *Generator) crowdstrike(ts time.Time) map[string]any {
	return map[string]any{
		"event_type":     g.f.RandomString([]string{"ProcessRollup2", "DetectionSummaryEvent", "NetworkConnectIP4", "UserLogon"}),
		"timestamp":      ts.UnixMilli(),
		"severity":       g.f.Number(1, 10),
		"ComputerName":   fmt.Sprintf("WS-%s", g.f.LetterN(6)),
		"UserName":       g.f.Username(),
		"ProcessName":    g.f.RandomString([]string{"powershell.exe", "cmd.exe", "rundll32.exe", "chrome.exe"}),
		"sha256":         g.f.Regex("[a-f0-9]{64}"),
		"detection_name": g.f.RandomString([]string{"CredentialDumping", "SuspiciousScript", "Ransomware", ""}),
		"ip":             g.f.IPv4Address(),
	}
}

func (g *Generator) aws(ts time.Time) map[string]any {
	return map[string]any{
		"eventTime":          ts.Format(time.RFC3339),
		"eventName":          g.f.RandomString([]string{"ConsoleLogin", "AssumeRole", "PutObject", "DeleteBucket", "CreateUser", "GetObject"}),
		"eventSource":        g.f.RandomString([]string{"signin.amazonaws.com", "sts.amazonaws.com", "s3.amazonaws.com", "iam.amazonaws.com"}),
		"awsRegion":          g.f.RandomString([]string{"us-east-1", "us-west-2", "eu-west-1"}),
		"recipientAccountId": g.f.DigitN(12),
		"sourceIPAddress":    g.f.IPv4Address(),
		"userIdentity":       map[string]any{"type": "IAMUser", "userName": g.f.Username()},
	}
}

func (g *Generator) m365(ts time.Time) map[string]any {
	return map[string]any{
		"CreationTime": ts.Format("2006-01-02T15:04:05"),
		"Operation":    g.f.RandomString([]string{"UserLoggedIn", "UserLoginFailed", "FileAccessed", "FileDeleted", "MailItemsAccessed"}),
		"Workload":     g.f.RandomString([]string{"AzureActiveDirectory", "SharePoint", "Exchange", "OneDrive"}),
		"UserId":       g.f.Email(),
		"ClientIP":     g.f.IPv4Address(),
		"ObjectId":     "https://" + g.f.DomainName() + "/" + g.f.Word(),
		"Status":       g.f.RandomString([]string{"Succeeded", "Failed"}),
	}
}

func (g *Generator) ad(ts time.Time) map[string]any {
	return map[string]any{
		"EventID":        g.f.RandomInt([]int{4624, 4625, 4634, 4720, 4740, 4768, 4776}),
		"TimeGenerated":  ts.Format(time.RFC3339),
		"TargetUserName": g.f.Username(),
		"Computer":       fmt.Sprintf("DC%02d.corp.local", g.f.Number(1, 4)),
		"IpAddress":      g.f.IPv4Address(),
		"LogonType":      g.f.RandomInt([]int{2, 3, 10}),
	}
}

// BruteForce returns attempts failed logins for one user from one IP,
// spaced a second apart and ending now.
func (g *Generator) BruteForce(tenant, user, ip string, attempts int) []map[string]any {
	now := g.now().UTC()
	out := make([]map[string]any, 0, attempts)
	for i := range attempts {
		ev := g.api(now.Add(-time.Duration(attempts-1-i)*time.Second), correlation.EventLoginFailed, user, ip)
		ev["tenant"] = tenant
		ev["source"] = string(models.SourceAPI)
		out = append(out, ev)
	}
	return out
}

// Distributed returns one failed login per source IP for the same user.
func (g *Generator) Distributed(tenant, user string, ips int) []map[string]any {
	now := g.now().UTC()
	out := make([]map[string]any, 0, ips)
	seen := make(map[string]bool, ips)
	for len(out) < ips {
		ip := g.f.IPv4Address()
		if seen[ip] {
			continue
		}
		seen[ip] = true
		ev := g.api(now.Add(-time.Duration(ips-len(out))*time.Second), correlation.EventLoginFailed, user, ip)
		ev["tenant"] = tenant
		ev["source"] = string(models.SourceAPI)
		out = append(out, ev)
	}
	return out
}

// Scenario builds a named attack against a random user of the first tenant.
// "recovery" is a brute force followed by a successful login.
func (g *Generator) Scenario(name string) ([]map[string]any, error) {
	tenant := g.tenants[0]
	user := g.f.Username()
	switch name {
	case ScenarioBruteForce:
		return g.BruteForce(tenant, user, g.f.IPv4Address(), 5), nil
	case ScenarioDistributed:
		return g.Distributed(tenant, user, 4), nil
	case ScenarioRecovery:
		ip := g.f.IPv4Address()
		events := g.BruteForce(tenant, user, ip, 3)
		ok := g.api(g.now().UTC(), correlation.EventLoginSuccess, user, ip)
		ok["tenant"] = tenant
		ok["source"] = string(models.SourceAPI)
		return append(events, ok), nil
	}
	return nil, fmt.Errorf("unknown scenario %q (valid: %v)", name, Scenarios)
}
