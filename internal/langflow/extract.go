package langflow

import "strings"

// ExtractMessage pulls the agent's answer out of a Langflow run response.
// The response shape varies with flow configuration and Langflow version,
// so several known locations are probed in priority order:
//
//  1. artifacts.message (most common for agent flows)
//  2. messages[0].message
//  3. results.message.text
//  4. results.message.data.text
//  5. results.message when it is a plain string
//
// Returns "" when the wrapper arrays are missing or no probe matches.
func ExtractMessage(response map[string]interface{}) string {
	outputs, ok := response["outputs"].([]interface{})
	if !ok || len(outputs) == 0 {
		return ""
	}
	first, ok := outputs[0].(map[string]interface{})
	if !ok {
		return ""
	}
	inner, ok := first["outputs"].([]interface{})
	if !ok || len(inner) == 0 {
		return ""
	}
	result, ok := inner[0].(map[string]interface{})
	if !ok {
		return ""
	}

	probes := []func(map[string]interface{}) string{
		probeArtifactsMessage,
		probeMessagesArray,
		probeResultsMessageText,
		probeResultsMessageDataText,
		probeResultsMessageString,
	}
	for _, probe := range probes {
		if text := probe(result); text != "" {
			return text
		}
	}
	return ""
}

func probeArtifactsMessage(result map[string]interface{}) string {
	artifacts, ok := result["artifacts"].(map[string]interface{})
	if !ok {
		return ""
	}
	return trimmedString(artifacts["message"])
}

func probeMessagesArray(result map[string]interface{}) string {
	messages, ok := result["messages"].([]interface{})
	if !ok || len(messages) == 0 {
		return ""
	}
	first, ok := messages[0].(map[string]interface{})
	if !ok {
		return ""
	}
	return trimmedString(first["message"])
}

func probeResultsMessageText(result map[string]interface{}) string {
	msg, ok := resultsMessage(result).(map[string]interface{})
	if !ok {
		return ""
	}
	return trimmedString(msg["text"])
}

func probeResultsMessageDataText(result map[string]interface{}) string {
	msg, ok := resultsMessage(result).(map[string]interface{})
	if !ok {
		return ""
	}
	data, ok := msg["data"].(map[string]interface{})
	if !ok {
		return ""
	}
	return trimmedString(data["text"])
}

func probeResultsMessageString(result map[string]interface{}) string {
	return trimmedString(resultsMessage(result))
}

// resultsMessage returns results.message, whatever its type, or nil.
func resultsMessage(result map[string]interface{}) interface{} {
	results, ok := result["results"].(map[string]interface{})
	if !ok {
		return nil
	}
	return results["message"]
}

// trimmedString returns v trimmed when it is a non-blank string, else "".
func trimmedString(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
