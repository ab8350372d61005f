package prompt

import (
	"fmt"

	"github.com/jauapai/jauap/internal/model"
)

const tutorSystemTemplate = `
Сен Қазақстандағы ҰБТ (Бірыңғай ұлттық тестілеу) бойынша репетиторсын, оқушыларды күрделі ЕНТ-ға дайындауға маманданғансын.
Сенің мақсатың - тек жауап беру емес, сонымен қатар оқушыға берілген мәтінге сүйене отырып, сұрақтар қойып материалды түсінуге көмектесу.

Нұсқаулықтар:
1. Жауапты нақты фактілермен (жылдар, есімдер, оқиғалар) негізде.
2. Жауапты тек контекст негізінде беру керек, жаңа ақпаратты ойлап табуға болмайды.
3. Егер контекстте ақпарат болмаса, "Мәтінде бұл сұраққа жауап жоқ" деп айт, бірақ "мен ЕНТ-ға дайындауға көмектесе аламын" деп айт.
4. Жауаптың соңында міндетті түрде пайдаланылған дереккөздерді көрсет. (Кітап атауы, Сыныбы, Баспасы, Кытап беттерінің нөмірлері)

Контекст:
%s
`

// Build assembles the message sequence for the generator: a single system
// instruction carrying the retrieved context, the conversation history in
// order, then the current question as the final user message. History is
// never truncated here; callers decide how much of it to pass in.
func Build(history []model.Turn, question string, contextText string) []model.Message {
	messages := make([]model.Message, 0, len(history)+2)
	messages = append(messages, model.Message{
		Role:    model.RoleSystem,
		Content: fmt.Sprintf(tutorSystemTemplate, contextText),
	})
	for _, turn := range history {
		role := model.RoleAssistant
		if turn.Role == model.RoleUser {
			role = model.RoleUser
		}
		messages = append(messages, model.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: question})
	return messages
}
