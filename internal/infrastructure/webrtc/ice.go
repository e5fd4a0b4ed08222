package webrtc

import (
	"fmt"
	"strings"

	"carebridge/pkg/config"

	"github.com/pion/webrtc/v3"
)

// DefaultSTUNURLs are handed out when no ICE servers are configured.
var DefaultSTUNURLs = []string{"stun:stun.l.google.com:19302"}

// ICEConfig is the ICE setup browsers use for consultation calls. The
// server never touches media; it only tells both parties where to gather
// candidates.
type ICEConfig struct {
	Servers         []webrtc.ICEServer
	TransportPolicy webrtc.ICETransportPolicy
}

// NewICEConfig converts configured servers into pion ICE servers, falling
// back to public STUN when the list is empty.
func NewICEConfig(servers []config.ICEServer, transportPolicy string) (*ICEConfig, error) {
	cfg := &ICEConfig{TransportPolicy: webrtc.ICETransportPolicyAll}
	if transportPolicy != "" {
		policy := webrtc.NewICETransportPolicy(transportPolicy)
		if policy.String() != transportPolicy {
			return nil, fmt.Errorf("unknown ice transport policy %q", transportPolicy)
		}
		cfg.TransportPolicy = policy
	}

	for i, s := range servers {
		server, err := toICEServer(s)
		if err != nil {
			return nil, fmt.Errorf("ice_servers[%d]: %w", i, err)
		}
		cfg.Servers = append(cfg.Servers, server)
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = []webrtc.ICEServer{{URLs: append([]string(nil), DefaultSTUNURLs...)}}
	}

	if cfg.TransportPolicy == webrtc.ICETransportPolicyRelay && !cfg.hasTURN() {
		return nil, fmt.Errorf("relay transport policy needs at least one turn server")
	}
	return cfg, nil
}

func toICEServer(s config.ICEServer) (webrtc.ICEServer, error) {
	if len(s.URLs) == 0 {
		return webrtc.ICEServer{}, fmt.Errorf("urls must not be empty")
	}

	turn := false
	for _, u := range s.URLs {
		switch scheme(u) {
		case "stun", "stuns":
		case "turn", "turns":
			turn = true
		default:
			return webrtc.ICEServer{}, fmt.Errorf("unsupported ice url %q", u)
		}
	}
	if turn && (s.Username == "" || s.Credential == "") {
		return webrtc.ICEServer{}, fmt.Errorf("turn server requires username and credential")
	}

	server := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...)}
	if s.Username != "" {
		server.Username = s.Username
		server.Credential = s.Credential
		server.CredentialType = webrtc.ICECredentialTypePassword
	}
	return server, nil
}

func scheme(url string) string {
	i := strings.IndexByte(url, ':')
	if i <= 0 {
		return ""
	}
	return strings.ToLower(url[:i])
}

func (c *ICEConfig) hasTURN() bool {
	for _, s := range c.Servers {
		for _, u := range s.URLs {
			if sc := scheme(u); sc == "turn" || sc == "turns" {
				return true
			}
		}
	}
	return false
}

// Configuration is the peer connection configuration both parties should
// build their RTCPeerConnection with.
func (c *ICEConfig) Configuration() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers:         c.Servers,
		ICETransportPolicy: c.TransportPolicy,
		SDPSemantics:       webrtc.SDPSemanticsUnifiedPlan,
	}
}
