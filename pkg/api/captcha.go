package api

import (
	_ "embed"
	"errors"
	"net/http"
)

var errCaptchaNotConfigured = errors.New("captcha gate not configured")

//go:embed assets/temps_captcha_wasm.js
var captchaSolverJS []byte

//go:embed assets/temps_captcha_wasm_bg.wasm
var captchaSolverWasm []byte

// handleCaptchaVerify implements POST /_temps/captcha/verify, delegating
// straight to the ingress package's PoW gate.
func (s *Server) handleCaptchaVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	if s.Captcha == nil {
		writeInternalError(w, errCaptchaNotConfigured)
		return
	}
	s.Captcha.HandleVerify(w, r)
}

// handleCaptchaAsset serves the client-side solver: the JS loader at
// /__temps/temps_captcha_wasm.js and its wasm module at
// /__temps/temps_captcha_wasm_bg.wasm.
func (s *Server) handleCaptchaAsset(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/__temps/temps_captcha_wasm.js":
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(captchaSolverJS)
	case "/__temps/temps_captcha_wasm_bg.wasm":
		w.Header().Set("Content-Type", "application/wasm")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(captchaSolverWasm)
	default:
		writeNotFound(w, "asset")
	}
}
