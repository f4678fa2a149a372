package dialog

// Conversation copy. Menu option codes are matched exactly against the
// trimmed inbound text.

const (
	choiceConsultation = "1"
	choiceRepair       = "2"
	choiceSoftware     = "3"
	choiceEngineer     = "4"

	menuDone     = "1"
	menuContinue = "2"
	menuEscalate = "3"
)

const (
	msgTopMenu = "Добрый день! Чем я могу помочь?\n" +
		"1. Консультация\n" +
		"2. Ремонт / Диагностика\n" +
		"3. Помощь с программным обеспечением\n" +
		"4. Связаться с инженером"

	msgChooseBranch = "Пожалуйста, введите 1, 2, 3 или 4."

	msgConsultPrompt = "Расскажите подробнее, с чем Вам необходимо помочь?"

	msgRepairPrompt = "Что у Вас случилось? Укажите тип оборудования (ПК/МФУ/телефон и т.п.) и проблему в одном сообщении."

	msgSoftwarePrompt = "Опишите, что необходимо настроить или установить."

	msgEngineerPrompt = "Оставьте, пожалуйста, контактные данные и удобное время для звонка."

	msgConsultMenu = "\n\nВыберите:\n" +
		"1 — Всё понятно, спасибо\n" +
		"2 — Требуется дополнительная консультация\n" +
		"3 — Связаться с инженером"

	msgMoreDetails = "Пожалуйста, уточните ваш вопрос или опишите детали."

	msgClosing = "Рад помочь! Если появятся вопросы — пишите."

	msgRepairAck = "Понял. Передаю Вашу заявку в сервисный центр. Мы свяжемся с Вами в ближайшее время."

	msgSoftwareAck = "Понял. Передаю Вашу заявку в сервисный центр. Мы уточним детали и поможем с установкой/настройкой."

	msgEngineerAck = "Спасибо! Передаю Ваши контакты инженеру, он свяжется с Вами в рабочее время."

	msgClarify = "Напишите, пожалуйста, Ваш вопрос текстом."

	msgApology = "Извините, сейчас не получается ответить. Попробуйте, пожалуйста, повторить вопрос через минуту."

	msgFallback = "Произошла ошибка. Давайте начнём заново. Напишите любое сообщение."

	turnDone     = "Всё понятно, спасибо"
	turnContinue = "Требуется дополнительная консультация"
)
