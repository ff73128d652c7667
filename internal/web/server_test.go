package web

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edital-assistant/internal/chunker"
	"edital-assistant/internal/config"
	"edital-assistant/internal/llmservice"
	"edital-assistant/internal/mocks"
	"edital-assistant/internal/models"
	"edital-assistant/internal/parser"
	"edital-assistant/internal/provider"
	"edital-assistant/internal/rag"
	"edital-assistant/internal/session"
)

const dontKnow = "Não sei."

func newTestServer(t *testing.T) *Server {
	t.Helper()
	emb := mocks.NewMockEmbeddingService()
	llm := llmservice.New(mocks.NewGroundedChatModel(dontKnow), "mock", 0.3, provider.Policy{})
	r := rag.NewRAG(llm, emb, &config.RAGConfig{TopK: 4, DontKnowAnswer: dontKnow})

	sess, err := session.New(session.Deps{Parser: parser.New(), Embedder: emb, RAG: r}, chunker.Options{Size: 200, Overlap: 20, Separator: "\n"})
	require.NoError(t, err)
	srv, err := NewServer(sess)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func index(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func ask(t *testing.T, h http.Handler, question string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"question": {question}}
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, h, req)
}

func uploadRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("documents", name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestIndex_ShowsGreeting(t *testing.T) {
	h := newTestServer(t).Handler()
	body := index(t, h)
	assert.Contains(t, body, "Sou A.L.E.")
	assert.Contains(t, body, "Nenhum edital processado.")
}

func TestIndex_UnknownPath(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAsk_BeforeProcessing(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := ask(t, h, "qual o prazo?")
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	body := index(t, h)
	assert.Contains(t, body, "Carregue e processe seus editais antes de fazer perguntas.")
	assert.NotContains(t, body, "qual o prazo?")

	// the banner is shown once
	assert.NotContains(t, index(t, h), "Carregue e processe")
}

func TestProcessThenAsk(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, uploadRequest(t, map[string]string{
		"edital.txt": "O objeto é a aquisição de cadeiras.\nA entrega ocorre em Brasília.\n",
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	body := index(t, h)
	assert.Contains(t, body, "1 edital(is) processado(s)")
	assert.Contains(t, body, "Editais prontos para perguntas.")

	rec = ask(t, h, "onde é a entrega? Brasília")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	body = index(t, h)
	assert.Contains(t, body, "onde é a entrega? Brasília")
	assert.Contains(t, body, "<p>Segundo o edital, Brasília.</p>")
}

func TestProcess_NoFiles(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := do(t, h, uploadRequest(t, nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, index(t, h), "Nenhum edital foi carregado.")
}

func TestProcess_UnsupportedFormat(t *testing.T) {
	h := newTestServer(t).Handler()
	do(t, h, uploadRequest(t, map[string]string{"edital.odt": "x"}))
	body := index(t, h)
	assert.Contains(t, body, `class="status input"`)
	assert.Contains(t, body, "Nenhum edital processado.")
}

func TestAsk_EmptyQuestion(t *testing.T) {
	h := newTestServer(t).Handler()
	ask(t, h, "   ")
	assert.Contains(t, index(t, h), "Digite uma pergunta.")
}

func TestReset(t *testing.T) {
	h := newTestServer(t).Handler()
	do(t, h, uploadRequest(t, map[string]string{"edital.txt": "entrega em Brasília\n"}))
	ask(t, h, "onde? Brasília")

	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/reset", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	body := index(t, h)
	assert.Contains(t, body, "Conversa reiniciada.")
	assert.NotContains(t, body, "Segundo o edital")
	assert.Contains(t, body, "Nenhum edital processado.")
}

func TestBusy_RefusesConcurrentInteraction(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	srv.busy.Lock()
	rec := ask(t, h, "qual o prazo?")
	srv.busy.Unlock()

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), busyMessage)

	// reads are not serialized
	srv.busy.Lock()
	defer srv.busy.Unlock()
	index(t, h)
}

func TestMessages_Rendering(t *testing.T) {
	srv := newTestServer(t)
	msgs, err := srv.messages([]models.Turn{
		models.HumanTurn("<b>qual o prazo?</b>"),
		models.AssistantTurn("**Prazo**: 10 dias.\n\n<script>alert(1)</script>"),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "assistant", msgs[0].Role)
	assert.Equal(t, "human", msgs[1].Role)
	assert.Equal(t, "&lt;b&gt;qual o prazo?&lt;/b&gt;", string(msgs[1].HTML))
	assert.Contains(t, string(msgs[2].HTML), "<strong>Prazo</strong>")
	assert.NotContains(t, string(msgs[2].HTML), "<script>")
}

func TestMessages_UnknownRole(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.messages([]models.Turn{{Role: models.Role(9), Content: "x"}})
	require.Error(t, err)
}
