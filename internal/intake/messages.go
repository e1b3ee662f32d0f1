package intake

import (
	"fmt"

	"GuestReportBot/internal/countries"
	"GuestReportBot/internal/models/domain"
)

// Callback data and reply-menu labels understood by the controller.
const (
	BeginData    = "add_guest"
	OtherCountry = countries.OtherOption
	ConfirmLabel = "Подтвердить"
	SkipLabel    = "Пропустить"
)

const (
	msgSubscribed       = "Отлично! Вы успешно подписались на канал \"Нежелательные гости\"👍"
	msgAskCountry       = "Из какой вы страны?"
	msgAskCustomCountry = "Напишите название вашей страны."
	msgCountrySaved     = "Отлично!"
	msgAskCity          = "Теперь напишите ваш город."
	msgCitySaved        = "Хорошо!"
	msgAskGuestName     = "Напишите ФИО нежелательного гостя."
	msgGuestNameSaved   = "Записал!"
	msgPhoneSaved       = "Телефон записан!"
	msgEmptyAnswer      = "Ответ не может быть пустым. Попробуйте ещё раз:"
	msgSubmitted        = "Ваша заявка отправлена на модерацию. После проверки она появится в канале. Спасибо!"
	msgQueueFull        = "Сейчас слишком много заявок на модерации. Попробуйте отправить позже."
	msgSubmitFailed     = "Не удалось отправить заявку. Попробуйте ещё раз."
	msgCancelled        = "Заполнение заявки отменено."
	msgBeginButton      = "Добавить нежелательного гостя"
	msgOtherButton      = "Другая страна"
)

const msgAskPhone = "Напишите номер телефона нежелательного гостя без плюса, пробелов, " +
	"дефисов и скобок. Пример: 79781234567"

const msgBadPhone = "Похоже, номер указан некорректно.\n" +
	"Пожалуйста, введите номер в формате 79781234567"

const msgAskDescription = "Опишите ситуацию, связанную с этим гостем. " +
	"Даты заезда и выезда, в чем конфликт, чем все закончилось и т.д."

const msgAskPhotos = "Спасибо, что подробно описали вашу ситуацию с данным гостем.\n\n" +
	"Прикрепите фото последствий (по желанию). Сломанное имущество, " +
	"беспорядок в помещении, скриншот вашего общения с этим гостем и т.п.\n\n" +
	"<i>⚠️ Пожалуйста, не присылайте фото паспортов и других личных документов гостей! " +
	"Такие посты будут удаляться, а пользователи блокироваться.</i>"

func welcomeText(channel string) string {
	return fmt.Sprintf("Чтобы добавить нежелательного гостя, вы должны быть подписаны на канал %s", channel)
}

func deniedText(channel string) string {
	return fmt.Sprintf("Доступ ограничен из-за отсутствия подписки на канал %s", channel)
}

func photoLimitText(limit int) string {
	return fmt.Sprintf("Можно загрузить не более %d фото. Нажмите «%s» или «%s».", limit, ConfirmLabel, SkipLabel)
}

func tooLongText(limit int) string {
	return fmt.Sprintf("Слишком длинный ответ, максимум %d символов. Попробуйте короче:", limit)
}

func photoAddedText(n, limit int) string {
	return fmt.Sprintf("Фото добавлено (%d/%d).", n, limit)
}

func welcomeMessage(channel string) domain.Message {
	return domain.Message{
		Text:   welcomeText(channel),
		Inline: domain.Keyboard{{{Text: msgBeginButton, Data: BeginData}}},
	}
}

// CountryKeyboard lists one country per row followed by the free-text option.
func CountryKeyboard(names []string) domain.Keyboard {
	kb := make(domain.Keyboard, 0, len(names)+1)
	for _, name := range names {
		if name == OtherCountry {
			continue
		}
		kb = append(kb, []domain.Button{{Text: name, Data: countries.CallbackPrefix + name}})
	}
	return append(kb, []domain.Button{{Text: msgOtherButton, Data: countries.CallbackPrefix + OtherCountry}})
}

func photosMenu() []string {
	return []string{ConfirmLabel, SkipLabel}
}
