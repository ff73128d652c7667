package session

import (
	"context"
	"errors"
	"fmt"

	"edital-assistant/internal/chromemdb"
	"edital-assistant/internal/chunker"
	"edital-assistant/internal/parser"
	"edital-assistant/internal/provider"
	"edital-assistant/internal/rag"
)

// Kind classifies an interaction failure for display.
type Kind string

const (
	KindInput     Kind = "input"
	KindReadiness Kind = "readiness"
	KindProvider  Kind = "provider"
	KindEmpty     Kind = "empty"
	KindInternal  Kind = "internal"
)

// Describe maps an error returned by Process or Ask to its kind and a
// message for the user.
func Describe(err error) (Kind, string) {
	var perr *provider.Error
	switch {
	case errors.Is(err, parser.ErrNoDocuments):
		return KindInput, "Nenhum edital foi carregado. Selecione ao menos um arquivo e pressione \"Processar\"."
	case errors.Is(err, parser.ErrUnsupportedFormat), errors.Is(err, parser.ErrUnreadable):
		return KindInput, fmt.Sprintf("Não foi possível ler os editais enviados: %v", err)
	case errors.Is(err, ErrEmptyQuestion):
		return KindInput, "Digite uma pergunta."
	case errors.Is(err, rag.ErrNotReady):
		return KindReadiness, "Carregue e processe seus editais antes de fazer perguntas."
	case errors.Is(err, chromemdb.ErrEmptyIndex):
		return KindEmpty, "Nenhum texto foi extraído dos editais enviados. Documentos digitalizados sem OCR não são suportados."
	case errors.As(err, &perr):
		return KindProvider, fmt.Sprintf("O serviço %s não respondeu (%s, %d tentativas). Tente novamente em instantes.", perr.Provider, perr.Op, perr.Attempts)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindProvider, "A operação foi interrompida antes de terminar. Tente novamente."
	case errors.Is(err, chunker.ErrInvalidOptions):
		return KindInternal, fmt.Sprintf("Configuração de divisão de texto inválida: %v", err)
	default:
		return KindInternal, fmt.Sprintf("Erro inesperado: %v", err)
	}
}
