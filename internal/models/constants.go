package models

const (
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	Greeting       = "Olá! Sou A.L.E., aqui para ajudá-lo. Como posso ser útil hoje?"
	DontKnowAnswer = "Não sei. Essa informação não consta nos editais fornecidos."
)

var (
	// ContextualizePrompt turns a follow-up question into a standalone query.
	ContextualizePrompt = `Dado o histórico da conversa e a última pergunta do usuário, que pode fazer referência ao histórico, reescreva a pergunta de forma que ela possa ser entendida sem o histórico. NÃO responda a pergunta; apenas reescreva-a se necessário, caso contrário devolva-a como está.`

	// AnswerPromptTemplate takes the don't-know sentence and the retrieved
	// context, in that order.
	AnswerPromptTemplate = `Você é um assistente para tarefas de resposta a perguntas, limitando-se estritamente ao contexto fornecido. Utilize as partes do contexto recuperado para responder à pergunta de forma concisa, em até três frases. Se a resposta não estiver disponível no contexto, responda exatamente: "%s". Qualquer resposta deve permanecer dentro dos limites do contexto fornecido, sem responder a perguntas fora desse escopo.

<contexto>
%s
</contexto>`
)
