// Package notify builds terminal payloads and delivers them to webhooks.
package notify

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

// Status words used by the two caller shapes.
const (
	TaskStatusDone     = "CONCLUIDO"
	TaskStatusError    = "ERRO"
	FlexibleStatusDone = "Feito"
	FlexibleStatusErr  = "Erro"
)

// Links holds the download URLs of a rendered datasheet. Nil entries encode as null.
type Links struct {
	PDF  *string `json:"pdf"`
	Word *string `json:"word"`
}

// TaskResult wraps the generated files for the structured task shape.
type TaskResult struct {
	Arquivos Links `json:"arquivos"`
}

// TaskPayload is the webhook body for requests submitted with a task code.
// CodigoTarefa echoes the submitted value unchanged; a missing one is null.
type TaskPayload struct {
	CodigoTarefa json.RawMessage `json:"codigoTarefa"`
	Status       string          `json:"status"`
	Sucesso      bool            `json:"sucesso"`
	Resultado    *TaskResult     `json:"resultado,omitempty"`
	Erro         string          `json:"erro,omitempty"`
}

// FlexiblePayload is the webhook body for free-form submissions. The four
// id fields always carry the same resolved id; consumers read different ones.
type FlexiblePayload struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	CustomID  string `json:"custom_id"`
	ID        string `json:"id"`
	PedidoID  string `json:"pedido_id"`
	Download  *Links `json:"download,omitempty"`
	Mensagem  string `json:"mensagem,omitempty"`
}

// Success builds the completion payload for record in its origin's shape.
func Success(record datasheet.RequestRecord, links Links) (json.RawMessage, error) {
	if record.Origin == datasheet.OriginTask {
		return marshal(TaskPayload{
			CodigoTarefa: record.TaskCode,
			Status:       TaskStatusDone,
			Sucesso:      true,
			Resultado:    &TaskResult{Arquivos: links},
		})
	}
	id := record.ResolvedID()
	return marshal(FlexiblePayload{
		Status:    FlexibleStatusDone,
		RequestID: id,
		CustomID:  id,
		ID:        id,
		PedidoID:  id,
		Download:  &links,
	})
}

// Failure builds the error payload for record in its origin's shape.
func Failure(record datasheet.RequestRecord, message string) (json.RawMessage, error) {
	if strings.TrimSpace(message) == "" {
		message = "processing failed"
	}
	if record.Origin == datasheet.OriginTask {
		return marshal(TaskPayload{
			CodigoTarefa: record.TaskCode,
			Status:       TaskStatusError,
			Sucesso:      false,
			Erro:         message,
		})
	}
	id := record.ResolvedID()
	return marshal(FlexiblePayload{
		Status:    FlexibleStatusErr,
		RequestID: id,
		CustomID:  id,
		ID:        id,
		PedidoID:  id,
		Mensagem:  message,
	})
}

// DownloadLinks turns generated filenames into {base}/download/{name} URLs.
// Empty names yield null links.
func DownloadLinks(baseURL string, docs datasheet.Documents) Links {
	base := strings.TrimRight(baseURL, "/")
	link := func(name string) *string {
		if name == "" {
			return nil
		}
		u := base + "/download/" + url.PathEscape(name)
		return &u
	}
	return Links{PDF: link(docs.PDF), Word: link(docs.Word)}
}

func marshal(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}
