package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"edital-assistant/internal/chromemdb"
	"edital-assistant/internal/config"
	"edital-assistant/internal/llmservice"
	"edital-assistant/internal/mocks"
	"edital-assistant/internal/models"
	"edital-assistant/internal/provider"
)

const dontKnow = "Não sei."

func groundedModel() *mocks.MockChatModel {
	return mocks.NewGroundedChatModel(dontKnow)
}

func newRAG(t *testing.T, model llmservice.ChatModel, topK int) (*RAG, *mocks.MockEmbeddingService) {
	t.Helper()
	emb := mocks.NewMockEmbeddingService()
	client := llmservice.New(model, "mock", 0.3, provider.Policy{MaxRetries: 1})
	return NewRAG(client, emb, &config.RAGConfig{TopK: topK, DontKnowAnswer: dontKnow}), emb
}

func buildIndex(t *testing.T, emb *mocks.MockEmbeddingService, texts ...string) *chromemdb.Index {
	t.Helper()
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{Index: i, Content: text}
	}
	ix, err := chromemdb.Build(context.Background(), emb, chunks)
	require.NoError(t, err)
	return ix
}

func TestQuery_NotReady(t *testing.T) {
	model := groundedModel()
	r, _ := newRAG(t, model, 10)

	_, err := r.Query(context.Background(), nil, "qual o prazo?", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, model.Calls())
}

func TestQuery_DontKnowWhenContextLacksAnswer(t *testing.T) {
	model := groundedModel()
	r, emb := newRAG(t, model, 10)
	ix := buildIndex(t, emb, "aaaa", "bbbb", "cccc")

	ans, err := r.Query(context.Background(), ix, "what is X?", nil)
	require.NoError(t, err)
	assert.Equal(t, dontKnow, ans.Content)
	assert.Equal(t, "what is X?", ans.Query)
	// no history: only the answer call
	assert.Len(t, model.Calls(), 1)
}

func TestQuery_AnswersFromContext(t *testing.T) {
	model := groundedModel()
	r, emb := newRAG(t, model, 10)
	ix := buildIndex(t, emb, "O pregão ocorre em Brasília", "bbbb")

	ans, err := r.Query(context.Background(), ix, "onde ocorre? Brasília", nil)
	require.NoError(t, err)
	assert.Equal(t, "Segundo o edital, Brasília.", ans.Content)
	assert.Len(t, ans.Sources, 2)
}

func TestQuery_ProviderFailureIsNotDontKnow(t *testing.T) {
	model := groundedModel()
	model.SetFailNext(2)
	r, emb := newRAG(t, model, 10)
	ix := buildIndex(t, emb, "aaaa")

	ans, err := r.Query(context.Background(), ix, "what is X?", nil)
	require.Error(t, err)
	assert.Nil(t, ans)
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}

func TestRewrite_NoHistorySkipsModel(t *testing.T) {
	model := groundedModel()
	r, _ := newRAG(t, model, 10)

	q, err := r.Rewrite(context.Background(), "qual o objeto?", nil)
	require.NoError(t, err)
	assert.Equal(t, "qual o objeto?", q)
	assert.Empty(t, model.Calls())
}

func TestRewrite_UsesHistory(t *testing.T) {
	model := groundedModel()
	r, _ := newRAG(t, model, 10)
	history := []models.Turn{
		models.HumanTurn("qual o objeto do pregão 12?"),
		models.AssistantTurn("Aquisição de cadeiras."),
	}

	q, err := r.Rewrite(context.Background(), "e o prazo?", history)
	require.NoError(t, err)
	assert.Equal(t, "standalone: e o prazo?", q)

	require.Len(t, model.Calls(), 1)
	msgs := model.Calls()[0]
	require.Len(t, msgs, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, "Aquisição de cadeiras.", mocks.MessageText(msgs[2]))
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[3].Role)
}

func TestQuery_AnswerPromptLayout(t *testing.T) {
	model := groundedModel()
	r, emb := newRAG(t, model, 10)
	ix := buildIndex(t, emb, "primeiro trecho", "segundo trecho")
	history := []models.Turn{models.HumanTurn("oi"), models.AssistantTurn("olá")}

	ans, err := r.Query(context.Background(), ix, "e o trecho?", history)
	require.NoError(t, err)
	assert.Equal(t, "standalone: e o trecho?", ans.Query)

	calls := model.Calls()
	require.Len(t, calls, 2)
	msgs := calls[1]
	require.Len(t, msgs, 4)

	system := mocks.MessageText(msgs[0])
	assert.Contains(t, system, dontKnow)
	assert.Contains(t, system, "primeiro trecho")
	assert.Contains(t, system, "segundo trecho")
	assert.Contains(t, system, models.ContextSeparator)
	assert.Equal(t, "oi", mocks.MessageText(msgs[1]))
	assert.Equal(t, "olá", mocks.MessageText(msgs[2]))
	// the answer sees the original question, not the rewrite
	assert.Equal(t, "e o trecho?", mocks.MessageText(msgs[3]))
}

func TestRetrieve_TopK(t *testing.T) {
	r, emb := newRAG(t, groundedModel(), 2)
	ix := buildIndex(t, emb, "aaaa", "bbbb", "cccc")

	got, err := r.Retrieve(context.Background(), ix, "cc")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cccc", got[0].Content)
}

func TestAnswer_UnknownRole(t *testing.T) {
	r, _ := newRAG(t, groundedModel(), 2)
	_, err := r.Answer(context.Background(), "q", nil, []models.Turn{{Role: 0, Content: "?"}})
	assert.Error(t, err)
}
