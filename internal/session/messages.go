package session

import "fmt"

const (
	messageConsentRequestFormat = ":microphone2: **Recording is starting in #%s.**\n" +
		"Your voice will only be captured with your consent. Reply with one of:\n" +
		"- `yes` to be recorded for this session only\n" +
		"- `always` to be recorded in every future session on this server\n" +
		"- `no` to opt out"

	messageConsentGrantedOnce      = ":white_check_mark: **You will be recorded for this session only.**\n-# Reply `revoke` at any time to withdraw consent."
	messageConsentGrantedPermanent = ":white_check_mark: **You will be recorded in all future sessions on this server.**\n-# Reply `revoke` at any time to withdraw consent."
	messageConsentDeclined         = ":mute: **Your voice will not be recorded.**\n-# You can still reply `yes` or `always` later to opt in."
	messageConsentRevoked          = ":mute: **All of your recording consents have been revoked.**"
)

func consentRequestMessage(channelName string) string {
	return fmt.Sprintf(messageConsentRequestFormat, channelName)
}
