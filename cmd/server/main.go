package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"moltbridge/server/internal/auth"
	"moltbridge/server/internal/mcp"
	"moltbridge/server/internal/middleware"
	"moltbridge/server/internal/modules"
	"moltbridge/server/internal/modules/moltbook"
	"moltbridge/server/internal/observability"
)

func main() {
	// Initialize observability (Loki)
	observability.Init()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	// Instance identification for LB
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "local"
	}
	instanceRegion := os.Getenv("INSTANCE_REGION")
	if instanceRegion == "" {
		instanceRegion = "local"
	}

	// Initialize Ed25519 signing keys for JWT API keys
	if err := auth.Init(); err != nil {
		log.Fatalf("Failed to initialize auth keys: %v", err)
	}

	// Register the moltbook module. Plugin configuration is read from the
	// environment on every call, so changes take effect without a restart.
	// The host may disable individual tools without failing registration.
	modules.Register(moltbook.New(moltbook.ConfigFromEnv), modules.RegisterOptions{
		DisabledTools: splitList(os.Getenv("MOLTBRIDGE_DISABLED_TOOLS")),
	})

	toolNames := make([]string, 0, 4)
	for _, t := range modules.ListTools() {
		toolNames = append(toolNames, t.Name)
	}
	log.Printf("Registered tools: %v", toolNames)
	log.Printf("Instance: %s (region: %s)", instanceID, instanceRegion)

	// Create router (Go 1.22+ method-aware patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Instance-ID", instanceID)
		w.Header().Set("X-Instance-Region", instanceRegion)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","instance":"%s","region":"%s","tools":%d}`, instanceID, instanceRegion, len(toolNames))
	})

	// MCP endpoint with authorization + rate limit + transport middleware
	authorizer := middleware.NewAuthorizer()
	rateLimiter := middleware.NewRateLimiter(10, 20)
	mcpHandler := mcp.NewHandler()
	mux.Handle("/v1/mcp", middleware.Recovery(authorizer.Authorize(rateLimiter.Middleware(middleware.Transport(mcpHandler)))))

	// JWKS endpoint (public, for API key verification)
	mux.HandleFunc("GET /.well-known/jwks.json", handleJWKS)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: mux,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting moltbridge server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down gracefully...", sig)

	// Give in-flight requests up to 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		observability.LogError("shutdown", err)
	}

	log.Printf("Server stopped")
}

// splitList parses a comma-separated env value into trimmed names.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// handleJWKS serves the JWKS endpoint for API key verification.
func handleJWKS(w http.ResponseWriter, r *http.Request) {
	kp := auth.GetKeyPair()
	w.Header().Set("Content-Type", "application/json")
	if kp == nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"keys": []interface{}{}})
		return
	}
	jwk := map[string]interface{}{
		"kty": "OKP",
		"crv": "Ed25519",
		"x":   base64.RawURLEncoding.EncodeToString(kp.PublicKey),
		"kid": kp.KID,
		"use": "sig",
		"alg": "EdDSA",
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"keys": []interface{}{jwk}})
}
