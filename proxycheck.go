package main

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// proxyProbeAddr is the address dialed through a proxy to verify it
	// forwards traffic. The bot talks to Telegram anyway, so its API host
	// is a safe probe target.
	proxyProbeAddr   = "api.telegram.org:443"
	proxyProbeTimeout = 8 * time.Second
)

// checkProxy dials proxyProbeAddr through the given proxy and reports
// whether the proxy accepted the connection. SOCKS5 proxies go through the
// x/net dialer; HTTP proxies get a CONNECT probe.
func checkProxy(rawProxy string) error {
	u, err := url.Parse(translateProxy(rawProxy))
	if err != nil || u.Host == "" {
		return fmt.Errorf("unrecognized proxy format: %s", rawProxy)
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: proxyProbeTimeout})
		if err != nil {
			return fmt.Errorf("socks5 dialer setup failed: %w", err)
		}
		conn, err := dialer.Dial("tcp", proxyProbeAddr)
		if err != nil {
			return fmt.Errorf("socks5 connect failed: %w", err)
		}
		conn.Close()
		return nil
	case "http", "https":
		return checkHTTPProxy(u)
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}
}

// checkHTTPProxy sends a CONNECT request and expects a 200 back.
func checkHTTPProxy(u *url.URL) error {
	conn, err := net.DialTimeout("tcp", u.Host, proxyProbeTimeout)
	if err != nil {
		return fmt.Errorf("proxy unreachable: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(proxyProbeTimeout))

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", proxyProbeAddr, proxyProbeAddr)
	if u.User != nil {
		pass, _ := u.User.Password()
		req += "Proxy-Authorization: Basic " + basicAuthToken(u.User.Username(), pass) + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		return fmt.Errorf("CONNECT write failed: %w", err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("CONNECT read failed: %w", err)
	}
	response := string(buf[:n])
	if !strings.Contains(response, " 200") {
		line, _, _ := strings.Cut(response, "\r\n")
		return fmt.Errorf("proxy refused CONNECT: %s", line)
	}
	return nil
}

func basicAuthToken(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

// checkProxies probes each proxy in order and collects the failures.
func checkProxies(proxies []string) (alive int, dead []string) {
	for _, p := range proxies {
		if err := checkProxy(p); err != nil {
			dead = append(dead, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		alive++
	}
	return alive, dead
}
