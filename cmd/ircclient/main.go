package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"git.sr.ht/~ircsuite/ircsuite/client"
)

func main() {
	var (
		host     string
		port     int
		useTLS   bool
		nick     string
		user     string
		real     string
		sasl     string
		proxyURL string
	)
	flag.StringVar(&host, "host", "chat.freenode.net", "server hostname")
	flag.IntVar(&port, "port", 6697, "server port")
	flag.BoolVar(&useTLS, "tls", true, "use TLS")
	flag.StringVar(&nick, "nick", "guest", "nickname")
	flag.StringVar(&user, "user", "guest", "username")
	flag.StringVar(&real, "real", "guest", "realname")
	flag.StringVar(&sasl, "sasl", "", "SASL PLAIN username; prompts for a password if set")
	flag.StringVar(&proxyURL, "proxy", "", "proxy URL, e.g. socks5://127.0.0.1:1080")
	flag.Parse()

	logger := log.New(os.Stderr, "ircclient: ", log.LstdFlags)
	c := client.NewClient(host, port, useTLS, logger)

	if proxyURL != "" {
		proxied, err := c.Conn.WithProxy(proxyURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ircclient: %s\n", err)
			os.Exit(1)
		}
		c.Conn = proxied
	}

	params := client.RegisterParams{Nick: nick, User: user, RealName: real}
	if sasl != "" {
		fmt.Fprint(os.Stderr, "SASL password: ")
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ircclient: %s\n", err)
			os.Exit(1)
		}
		params.Auth = &client.SASLPlain{Username: sasl, Password: string(pass)}
	}

	ctx := context.Background()
	if err := c.Register(ctx, params); err != nil {
		fmt.Fprintf(os.Stderr, "ircclient: registration failed: %s\n", err)
		os.Exit(1)
	}

	c.Session.Events.Subscribe(func(ev client.Event) {
		switch e := ev.(type) {
		case client.MessageEvent:
			fmt.Printf("<%s:%s> %s\n", e.User, e.Target, e.Content)
		case client.SelfJoinEvent:
			fmt.Printf("joined %s\n", e.Channel)
		case client.UserJoinEvent:
			fmt.Printf("%s joined %s\n", e.User, e.Channel)
		}
	})

	select {}
}
