package flow

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Confirmation button labels used before the questionnaire begins.
const (
	HonestyLabel = "✅ Я подтверждаю честность данных"
	ConsentLabel = "✅ Я согласен с условиями"
)

// Pre-questionnaire and service texts.
const (
	msgHonesty = "👋 Добро пожаловать в программу финансовой помощи клиники Сабо Дармон!\n\n" +
		"Анкета займёт около 10 минут. Пожалуйста, отвечайте честно: все данные проверяются, " +
		"а недостоверные сведения ведут к отказу в рассмотрении заявки.\n\n" +
		"Подтвердите честность предоставляемых данных, нажав кнопку ниже."

	msgRegisterName = "Введите ваше Ф.И.О. полностью (пример: Ivanov Ivan Ivanovich):"

	msgConsent = "📋 Условия участия:\n" +
		"• Ваши данные используются только для рассмотрения заявки на финансовую помощь.\n" +
		"• Клиника может запросить дополнительные документы.\n" +
		"• Решение комиссии является окончательным.\n\n" +
		"Для продолжения подтвердите согласие с условиями."

	msgNoSession = "Чтобы начать заполнение анкеты, отправьте команду /start."

	msgHonestyDeclined = "❌ Без подтверждения честности данных рассмотрение заявки невозможно. Анкета закрыта.\n\n" +
		"Если вы передумаете, отправьте /start, чтобы начать заново."

	msgNoProfileUsername = "❗ В вашем профиле Telegram не указан username. Введите его вручную, начиная с @."

	msgRegionManual     = "Введите ваш регион и город проживания:"
	msgDiscomfortManual = "Опишите своими словами, что доставляет вам наибольшие неудобства:"

	msgNoEarlierStep = "❗ Это первый вопрос анкеты, вернуться назад нельзя."

	msgNothingSelected = "❗ Выберите хотя бы один вариант перед завершением."
	msgDuplicate       = "ℹ️ Заявка на этого пациента уже была подана ранее. Повторная заявка не требуется — мы свяжемся с вами по итогам рассмотрения."
	msgSaveFailed      = "⚠️ Не удалось сохранить анкету из-за технической ошибки. Пожалуйста, отправьте последний ответ ещё раз через минуту."
	msgArchivePartial  = "⚠️ Часть приложенных файлов не удалось сохранить. Анкета принята, но сотрудник клиники может запросить документы повторно."
)

func msgCooldown(days int) string {
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf("⏳ Вы уже подавали заявку. Повторная подача будет доступна через %d дн.", days)
}

func msgAlreadySelected(label string) string {
	return fmt.Sprintf("☑️ Вариант «%s» уже выбран. Выберите другой пункт или завершите выбор.", label)
}

func msgOptionAdded(label string) string {
	return fmt.Sprintf("✅ Добавлено: %s", label)
}

func msgFileReceived(have, need int) string {
	if need > 0 {
		return fmt.Sprintf("📎 Файл получен (%d из %d).", have, need)
	}
	return fmt.Sprintf("📎 Файл получен (%d).", have)
}

func msgUploadsDeficit(have, need int) string {
	return fmt.Sprintf("❗ Загружено %d из %d. Пожалуйста, прикрепите метрики всех детей, затем завершите загрузку.", have, need)
}

// rejectionMessage maps a validation sentinel to the applicant-facing text.
func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrEmptyText), errors.Is(err, models.ErrNotText):
		return "❗ Пожалуйста, отправьте ответ текстовым сообщением."
	case errors.Is(err, models.ErrNotInOptions):
		return "❗ Пожалуйста, выберите один из предложенных вариантов с помощью кнопок."
	case errors.Is(err, models.ErrInvalidPhone):
		return "❗ Неверный формат номера. Отправьте контакт кнопкой ниже или введите номер в формате +998901234567."
	case errors.Is(err, models.ErrForeignContact):
		return "❗ Пожалуйста, отправьте свой собственный контакт, а не чужой."
	case errors.Is(err, models.ErrInvalidUsername):
		return "❗ Неверный формат username. Он должен начинаться с @ и содержать не менее 5 символов."
	case errors.Is(err, models.ErrDateViaPickerOnly):
		return "❗ Пожалуйста, выберите дату с помощью календаря ниже."
	case errors.Is(err, models.ErrInvalidFileType):
		return "❗ Файл должен быть фотографией или документом PDF."
	case errors.Is(err, models.ErrNotAFile):
		return "❗ Пожалуйста, прикрепите файл: фотографию или документ PDF."
	case errors.Is(err, models.ErrInvalidAmount):
		return "❗ Введите сумму цифрами, без букв и знаков (например: 2000000)."
	default:
		return "❗ Не удалось обработать ответ. Попробуйте ещё раз."
	}
}
