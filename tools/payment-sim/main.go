package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicportal/libs/config"
	"github.com/md-rashed-zaman/clinicportal/libs/grpcx"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v79/webhook"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "payment-sim",
		Short: "Send signed payment results to a running booking-service",
	}
	rootCmd.PersistentFlags().String("base-url", config.String("BASE_URL", "http://localhost:8083"), "booking-service base url")
	rootCmd.PersistentFlags().String("appointment-id", "", "appointment to settle")
	rootCmd.PersistentFlags().String("outcome", "success", "success or failure")
	rootCmd.AddCommand(stripeCmd())
	rootCmd.AddCommand(callbackCmd())
	rootCmd.AddCommand(healthCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

func stripeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stripe",
		Short: "Send a signed Stripe payment_intent event to the webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, appointmentID, outcome, err := commonFlags(cmd)
			if err != nil {
				return err
			}
			secret, _ := cmd.Flags().GetString("secret")
			if strings.TrimSpace(secret) == "" {
				return errors.New("--secret or STRIPE_WEBHOOK_SECRET is required")
			}

			now := time.Now().UTC()
			payload, err := stripeEvent("evt_sim_"+uuid.NewString(), appointmentID, outcome, now)
			if err != nil {
				return err
			}
			signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
				Payload:   payload,
				Secret:    secret,
				Timestamp: now,
				Scheme:    "v1",
			})
			return send(cmd.OutOrStdout(), baseURL+"/api/v1/payments/webhooks/stripe", payload, "Stripe-Signature", signed.Header)
		},
	}
	cmd.Flags().String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	return cmd
}

func callbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Send a signed mobile-money callback",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, appointmentID, outcome, err := commonFlags(cmd)
			if err != nil {
				return err
			}
			secret, _ := cmd.Flags().GetString("secret")
			if strings.TrimSpace(secret) == "" {
				return errors.New("--secret or PAYMENT_CALLBACK_SECRET is required")
			}
			eventID, _ := cmd.Flags().GetString("event-id")
			if eventID == "" {
				eventID = uuid.NewString()
			}

			payload, err := json.Marshal(map[string]string{
				"event_id":       eventID,
				"appointment_id": appointmentID,
				"outcome":        outcome,
			})
			if err != nil {
				return err
			}
			return send(cmd.OutOrStdout(), baseURL+"/api/v1/payments/callback", payload, "X-Signature", sign(secret, payload))
		},
	}
	cmd.Flags().String("secret", config.String("PAYMENT_CALLBACK_SECRET", ""), "callback HMAC secret")
	cmd.Flags().String("event-id", "", "gateway event id (random when empty; reuse one to test dedupe)")
	return cmd
}

// healthCmd checks the service's gRPC health endpoint, handy before replaying payments at it.
func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check booking-service gRPC health",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("grpc-addr")
			service, _ := cmd.Flags().GetString("service")

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{})
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", service, resp.GetStatus())
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return errors.New("service not serving")
			}
			return nil
		},
	}
	cmd.Flags().String("grpc-addr", config.String("GRPC_ADDR", "localhost:9093"), "booking-service gRPC address")
	cmd.Flags().String("service", "booking-service", "health service name")
	return cmd
}

func commonFlags(cmd *cobra.Command) (baseURL, appointmentID, outcome string, err error) {
	baseURL, _ = cmd.Flags().GetString("base-url")
	appointmentID, _ = cmd.Flags().GetString("appointment-id")
	outcome, _ = cmd.Flags().GetString("outcome")
	if strings.TrimSpace(appointmentID) == "" {
		return "", "", "", errors.New("--appointment-id is required")
	}
	if outcome != "success" && outcome != "failure" {
		return "", "", "", fmt.Errorf("unsupported outcome %q", outcome)
	}
	return strings.TrimRight(baseURL, "/"), appointmentID, outcome, nil
}

var stripeEventTypes = map[string]string{
	"success": "payment_intent.succeeded",
	"failure": "payment_intent.payment_failed",
}

func stripeEvent(eventID, appointmentID, outcome string, t time.Time) ([]byte, error) {
	evtType, ok := stripeEventTypes[outcome]
	if !ok {
		return nil, fmt.Errorf("unsupported outcome %q", outcome)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        evtType,
		"api_version": "2024-06-20",
		"data": map[string]any{
			"object": map[string]any{
				"id":     "pi_sim_" + strings.ReplaceAll(appointmentID, "-", ""),
				"object": "payment_intent",
				"metadata": map[string]any{
					"appointment_id": appointmentID,
				},
			},
		},
	})
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func send(out io.Writer, url string, payload []byte, sigHeader, signature string) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sigHeader, signature)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	fmt.Fprintf(out, "status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	return nil
}
