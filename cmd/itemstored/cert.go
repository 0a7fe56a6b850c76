package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cuemby/itemstored/internal/config"
	"github.com/cuemby/itemstored/internal/log"
	"github.com/cuemby/itemstored/internal/security"
	"github.com/cuemby/itemstored/internal/store"
	"github.com/spf13/cobra"
)

// Certificate commands: the out-of-band provisioning flow for resource
// agents and CLI clients. An administrator runs `itemstored cert issue`
// on the server host; the resulting directory is copied to the agent,
// which loads it via internal/resourceclient.Connect.

var certCmd = &cobra.Command{
	Use:     "cert",
	Aliases: []string{"certificate", "certs"},
	Short:   "Manage resource-gateway TLS certificates",
}

var certIssueCmd = &cobra.Command{
	Use:   "issue NAME",
	Short: "Issue a certificate for a resource agent (or, with --client, a CLI client)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		asClient, _ := cmd.Flags().GetBool("client")
		dnsNames, _ := cmd.Flags().GetStringSlice("dns")
		ipStrs, _ := cmd.Flags().GetStringSlice("ip")
		dirFlag, _ := cmd.Flags().GetString("dir")

		st, ca, err := openCA(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var cert *tls.Certificate
		var dir security.CertDir
		if asClient {
			cert, err = ca.IssueClientCertificate(name)
			if err != nil {
				return fmt.Errorf("failed to issue client certificate: %w", err)
			}
			dir, err = security.ClientCertDir(name)
		} else {
			var ips []net.IP
			for _, s := range ipStrs {
				ip := net.ParseIP(s)
				if ip == nil {
					return fmt.Errorf("invalid IP address %q", s)
				}
				ips = append(ips, ip)
			}
			cert, err = ca.IssueResourceCertificate(name, dnsNames, ips)
			if err != nil {
				return fmt.Errorf("failed to issue resource certificate: %w", err)
			}
			dir, err = security.ResourceCertDir(name)
		}
		if err != nil {
			return err
		}
		if dirFlag != "" {
			dir = security.DirAt(dirFlag, dir.Kind)
		}

		if err := dir.Save(cert); err != nil {
			return fmt.Errorf("failed to save certificate: %w", err)
		}
		if err := dir.SaveCA(ca.GetRootCACert()); err != nil {
			return fmt.Errorf("failed to save CA certificate: %w", err)
		}

		leaf, err := leafOf(cert)
		if err != nil {
			return err
		}
		s := security.Summarize(leaf)
		fmt.Printf("Certificate issued for %s\n", name)
		fmt.Printf("  Kind: %s\n", dir.Kind)
		fmt.Printf("  Directory: %s\n", dir.Path)
		fmt.Printf("  Subject: %s\n", s.Subject)
		fmt.Printf("  Valid until: %s\n", s.NotAfter.Format(time.RFC3339))
		return nil
	},
}

var certListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued certificates under the default directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, err := security.ListCertDirs()
		if err != nil {
			return fmt.Errorf("failed to list certificates: %w", err)
		}
		if len(dirs) == 0 {
			fmt.Println("No certificates found")
			return nil
		}

		fmt.Printf("%-20s %-10s %-25s %-8s\n", "NAME", "KIND", "VALID UNTIL", "ROTATE")
		fmt.Println(strings.Repeat("-", 68))
		for _, d := range dirs {
			cert, err := d.Load()
			if err != nil {
				fmt.Printf("%-20s %-10s %-25s %-8s\n", d.Name(), d.Kind, "unreadable: "+err.Error(), "-")
				continue
			}
			s := security.Summarize(cert.Leaf)
			rotate := "no"
			if s.NeedsRotation {
				rotate = "yes"
			}
			fmt.Printf("%-20s %-10s %-25s %-8s\n", d.Name(), d.Kind, s.NotAfter.Format(time.RFC3339), rotate)
		}
		return nil
	},
}

var certInspectCmd = &cobra.Command{
	Use:   "inspect NAME",
	Short: "Show details for an issued certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveCertDir(cmd, args[0])
		if err != nil {
			return err
		}

		cert, err := dir.Load()
		if err != nil {
			return fmt.Errorf("failed to load certificate: %w", err)
		}
		s := security.Summarize(cert.Leaf)

		fmt.Printf("Name: %s\n", dir.Name())
		fmt.Printf("Kind: %s\n", dir.Kind)
		fmt.Printf("Directory: %s\n", dir.Path)
		fmt.Printf("Subject: %s\n", s.Subject)
		fmt.Printf("Issuer: %s\n", s.Issuer)
		fmt.Printf("Serial: %s\n", s.SerialNumber)
		fmt.Printf("Valid from: %s\n", s.NotBefore.Format(time.RFC3339))
		fmt.Printf("Valid until: %s (%s remaining)\n", s.NotAfter.Format(time.RFC3339), s.Remaining.Round(time.Hour))
		fmt.Printf("Needs rotation: %v\n", s.NeedsRotation)
		fmt.Printf("Key usage: %v\n", s.KeyUsage)
		fmt.Printf("Ext key usage: %v\n", s.ExtKeyUsage)

		if caCert, err := dir.LoadCA(); err == nil {
			if err := security.ValidateChain(cert.Leaf, caCert); err != nil {
				fmt.Printf("Chain: INVALID (%v)\n", err)
			} else {
				fmt.Println("Chain: valid")
			}
		}
		return nil
	},
}

var certRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove an issued certificate's material from disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveCertDir(cmd, args[0])
		if err != nil {
			return err
		}
		if err := dir.Remove(); err != nil {
			return fmt.Errorf("failed to remove certificate: %w", err)
		}
		fmt.Printf("Certificate material for %s removed\n", dir.Name())
		return nil
	},
}

// resolveCertDir maps a cert subcommand's NAME argument plus the shared
// --client/--dir flags to the directory holding its material.
func resolveCertDir(cmd *cobra.Command, name string) (security.CertDir, error) {
	asClient, _ := cmd.Flags().GetBool("client")
	dirFlag, _ := cmd.Flags().GetString("dir")

	kind := security.AgentResource
	if asClient {
		kind = security.AgentClient
	}
	if dirFlag != "" {
		return security.DirAt(dirFlag, kind), nil
	}
	if asClient {
		return security.ClientCertDir(name)
	}
	return security.ResourceCertDir(name)
}

func leafOf(cert *tls.Certificate) (*x509.Certificate, error) {
	if cert.Leaf != nil {
		return cert.Leaf, nil
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse issued certificate: %w", err)
	}
	return leaf, nil
}

// openCA opens the server's store and loads (or initializes) the
// resource-gateway CA, mirroring the daemon's startup sequence so
// certificates issued offline verify against the same root.
func openCA(ctx context.Context) (*store.Store, *security.CertAuthority, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	initLogging(cfg.LogLevel, cfg.LogJSON)

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("itemstored: open store: %w", err)
	}

	ca, err := setupCA(ctx, st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, ca, nil
}

// setupCA installs the server encryption key and loads the persisted CA,
// initializing and saving a fresh one on first run.
func setupCA(ctx context.Context, st *store.Store) (*security.CertAuthority, error) {
	serverID, err := ensureServerID(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("itemstored: server id: %w", err)
	}
	if err := security.SetServerEncryptionKey(security.DeriveKeyFromServerID(serverID)); err != nil {
		return nil, fmt.Errorf("itemstored: install encryption key: %w", err)
	}

	ca := security.NewCertAuthority(st)
	if err := ca.LoadFromStore(ctx); err != nil {
		if err := ca.Initialize(); err != nil {
			return nil, fmt.Errorf("itemstored: initialize CA: %w", err)
		}
		if err := ca.SaveToStore(ctx); err != nil {
			return nil, fmt.Errorf("itemstored: save CA: %w", err)
		}
		log.Info("generated a new resource-gateway CA")
	}
	return ca, nil
}

func init() {
	certIssueCmd.Flags().Bool("client", false, "issue a CLI client certificate instead of a resource agent one")
	certIssueCmd.Flags().StringSlice("dns", []string{"localhost"}, "DNS names for the resource agent's callback listener")
	certIssueCmd.Flags().StringSlice("ip", []string{"127.0.0.1"}, "IP addresses for the resource agent's callback listener")
	certIssueCmd.Flags().String("dir", "", "write material to this directory instead of the default")

	certInspectCmd.Flags().Bool("client", false, "look up a CLI client certificate")
	certInspectCmd.Flags().String("dir", "", "read material from this directory instead of the default")

	certRemoveCmd.Flags().Bool("client", false, "remove a CLI client certificate")
	certRemoveCmd.Flags().String("dir", "", "remove this directory instead of the default")

	certCmd.AddCommand(certIssueCmd)
	certCmd.AddCommand(certListCmd)
	certCmd.AddCommand(certInspectCmd)
	certCmd.AddCommand(certRemoveCmd)
	rootCmd.AddCommand(certCmd)
}
