package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push PACKAGE.deb",
	Short: "upload a .deb, regenerate the index, and sign-commit it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")
		repo, _ := cmd.Flags().GetString("repository")
		dist, _ := cmd.Flags().GetString("distribution")
		component, _ := cmd.Flags().GetString("component")
		keyPath, _ := cmd.Flags().GetString("signing-key")

		if repo == "" || dist == "" || component == "" {
			return fmt.Errorf("--repository, --distribution and --component are required")
		}
		if keyPath == "" {
			return fmt.Errorf("--signing-key is required (armored private key)")
		}

		keyData, err := os.ReadFile(keyPath)
		if err != nil {
			return fmt.Errorf("reading signing key: %w", err)
		}
		entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(keyData))
		if err != nil {
			return fmt.Errorf("parsing signing key: %w", err)
		}
		var signer *openpgp.Entity
		for _, e := range entities {
			if e.PrivateKey != nil {
				signer = e
				break
			}
		}
		if signer == nil {
			return fmt.Errorf("signing key contains no private key")
		}

		var pubKey bytes.Buffer
		if err := signer.Serialize(&pubKey); err != nil {
			return fmt.Errorf("serializing public key: %w", err)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		c := newClient(server, token)

		var uploadResult struct {
			SHA256Sum string `json:"sha256sum"`
		}
		if err := c.uploadPackage("/api/v0/packages", data, &uploadResult); err != nil {
			return fmt.Errorf("uploading package: %w", err)
		}
		fmt.Printf("uploaded package sha256=%s\n", uploadResult.SHA256Sum)

		genReq := map[string]any{
			"distribution": dist,
			"component":    component,
			"action": map[string]string{
				"type":   "add",
				"sha256": uploadResult.SHA256Sum,
			},
		}

		for attempt := 0; ; attempt++ {
			var genResult struct {
				Release   string `json:"release"`
				ReleaseTS string `json:"release_ts"`
			}
			path := fmt.Sprintf("/api/v0/repositories/%s/index", url.PathEscape(repo))
			if err := c.postJSONGet(path, genReq, &genResult); err != nil {
				return fmt.Errorf("generating index: %w", err)
			}

			var clearsigned bytes.Buffer
			w, err := clearsign.Encode(&clearsigned, signer.PrivateKey, nil)
			if err != nil {
				return fmt.Errorf("opening clearsign writer: %w", err)
			}
			if _, err := w.Write([]byte(genResult.Release)); err != nil {
				return fmt.Errorf("clearsigning release: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("closing clearsign writer: %w", err)
			}

			var detached bytes.Buffer
			if err := openpgp.DetachSign(&detached, signer, bytes.NewReader([]byte(genResult.Release)), nil); err != nil {
				return fmt.Errorf("detached-signing release: %w", err)
			}

			signReq := map[string]any{
				"distribution":    dist,
				"component":       component,
				"action":          genReq["action"],
				"release_ts":      genResult.ReleaseTS,
				"clearsigned":     clearsigned.String(),
				"detachsigned":    base64.StdEncoding.EncodeToString(detached.Bytes()),
				"public_key_cert": pubKey.String(),
			}

			err = c.postJSON(path, signReq, nil)
			if err == nil {
				fmt.Println("sign-commit succeeded")
				return nil
			}

			apiErr, ok := err.(*apiError)
			if !ok || (apiErr.Code != "CONCURRENT_INDEX_CHANGE" && apiErr.Code != "DETACHED_SIGNATURE_VERIFICATION_FAILED") {
				return fmt.Errorf("sign-commit: %w", err)
			}

			delay := 2*time.Second + time.Duration(rand.Int63n(int64(2*time.Second)))
			fmt.Printf("retrying after %s (%s)\n", delay, apiErr.Code)
			time.Sleep(delay)
		}
	},
}

func init() {
	pushCmd.Flags().String("repository", "", "target repository name")
	pushCmd.Flags().String("distribution", "", "target distribution")
	pushCmd.Flags().String("component", "", "target component")
	pushCmd.Flags().String("signing-key", "", "path to an armored OpenPGP private key")
}
