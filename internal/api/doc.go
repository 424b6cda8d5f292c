// Package api hosts the HTTP surface of the datasheet service. Notable routes:
//   - POST /api/datasheet/processar (alias POST /submit) accepts URLs.
//   - GET /api/status/{id} (alias GET /status/{id}) polls the ledger.
//   - GET /download/{filename} streams a generated datasheet.
//   - GET /health and GET /metrics for liveness checks and Prometheus scraping.
package api
