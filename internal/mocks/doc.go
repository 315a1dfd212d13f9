// Package mocks provides shared test doubles.
//
//	mockLLM := mocks.NewMockLLMClient()
//	mockLLM.RespondWith("The door creaks open.")
//	responder := router.NewLLMResponder(mockLLM, "You narrate.", 0, llm.TemperatureDefault)
//
// MockLLMClient records every request so tests can assert on the prompt a
// component built.
package mocks
