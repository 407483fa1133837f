// Package telegram implements messaging.Gateway on top of the Telegram Bot
// API.
//
// Inline keyboards are rendered as callback buttons whose callback_data is
// the opaque button payload. Button presses are acknowledged with
// answerCallbackQuery as they are polled so clients stop showing a spinner.
// Upload size rejections surface as messaging.ErrTooLarge and flood control
// as *messaging.RateLimitError.
package telegram
