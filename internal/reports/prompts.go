package reports

import (
	"fmt"

	"github.com/pysugar/report-nexus/internal/db/models"
)

// guidance is the format contract shared by generation and modification.
const guidance = "\n* JavaScript code (apiCode) to fetch data from the Xero API.\n" +
	"** Do not include dependencies on any external libraries. \n" +
	"** Do not call console.warn or console.error. Instead call console.log. \n" +
	"** Be aware that any dates returned by the Xero API will be in Microsoft JSON Date format so make sure the code can handle this.\n" +
	"** Any time you are calling the Xero Reports/ProfitAndLoss API endpoint, the actual Section Titles will be 'Income' not 'Revenue', 'Less Cost of Sales' not 'Expenses', 'Less Operating Expenses' not 'Expenses'\n" +
	"\n" +
	"* React code (renderCode) using ApexCharts to visualize the data. \n" +
	"** Do not include any import statements.\n" +
	"\n" +
	"API Code Structure:\n" +
	"```javascript\n" +
	"async function fetchReportData(context) {\n" +
	"  // Your code goes here\n" +
	"  // The context object contains:\n" +
	"  // - context.auth.token: The Xero OAuth token (already set up - do not use req.headers.authorization)\n" +
	"  // - context.tenantId: The Xero tenant ID for the organization (REQUIRED for all Xero API calls)\n" +
	"  // - context.userInfo: Information about the current user\n" +
	"  // Your API code should return data in this format:\n" +
	"  return {\n" +
	"    data: [\n" +
	"      // An array of data objects to be visualized\n" +
	"    ],\n" +
	"    metadata: {\n" +
	"      // Optional metadata about the data\n" +
	"      columns: [...],\n" +
	"      totalCount: 123,\n" +
	"      // etc.\n" +
	"    }\n" +
	"  };\n" +
	"}\n" +
	"```\n" +
	"\n" +
	"Render Code Structure:\n" +
	"```jsx\n" +
	"function ReportComponent({ data, metadata }) {\n" +
	"  // Your component code here\n" +
	"  // Use ApexCharts for visualizations\n" +
	"  return (\n" +
	"    <div>\n" +
	"      {/* Your visualization here */}\n" +
	"    </div>\n" +
	"  );\n" +
	"}\n" +
	"```\n" +
	"\n" +
	"\n" +
	"Output Format:\n" +
	"IMPORTANT: Your output MUST be a valid JSON object with the following structure:\n" +
	"{\n" +
	"  \"name\": \"A descriptive name for the report\",\n" +
	"  \"description\": \"Brief description of what the report shows\",\n" +
	"  \"apiCode\": \"...\", // The complete API code as a JSON-escaped string\n" +
	"  \"renderCode\": \"...\" // The complete Render code as a JSON-escaped string\n" +
	"}\n" +
	"\n" +
	"Handling Vague Queries:\n" +
	"If the user's query is too vague or lacks necessary information, output ONLY this specific JSON structure:\n" +
	"{\n" +
	"  \"needsMoreInfo\": true,\n" +
	"  \"name\": \"Incomplete Report Request\",\n" +
	"  \"description\": \"More information is needed\",\n" +
	"  \"requiredInfo\": [\"List of required information\"]\n" +
	"}\n" +
	"IMPORTANT: Respond ONLY with the valid JSON object as described. Do not include any introductory text, explanations, or markdown formatting. " +
	"Ensure all string values within the JSON, especially the code snippets, are properly escaped (e.g., newlines as \\n, quotes as \\\", backslashes as \\\\).\n"

const generateInstructions = "You are a helpful assistant that generates JavaScript code to create dashboard reports based on user queries about Xero API data.\n" +
	"Your task is to generate two code snippets:\n\n" + guidance + " \n\n"

const modifyInstructions = "You are a helpful assistant that modifies existing dashboard report code based on user requests.\n" +
	"You will be given the original user query, the current API code, the current render code, and a new user request for modification.\n" +
	"Your task is to update the API code and/or Render code based on the user's request. " +
	"Keep the overall structure and functionality unless the request specifically asks for major changes.\n\n" + guidance

const answerInstructions = "You are an expert code analyst. You will be given details about a dashboard report, " +
	"including its original query, API code (fetches data), and render code (displays data). " +
	"You will also be given a user's question about this report.\n" +
	"Your task is to analyze the provided code and context to answer the user's question accurately and concisely. " +
	"Explain how the report works or how specific calculations are made based *only* on the provided code. " +
	"Do not invent information or assume external factors not present in the code. " +
	"If the code doesn't provide enough information to answer, state that clearly."

func generatePrompt(query string) string {
	return "User Query: " + query
}

func modifyPrompt(r *models.Report, request string) string {
	return fmt.Sprintf("Original Query: %s\n\n"+
		"Current API Code:\n```javascript\n%s\n```\n\n"+
		"Current Render Code:\n```jsx\n%s\n```\n\n"+
		"User Modification Request: %s",
		r.Query, r.APICode, r.RenderCode, request)
}

func answerPrompt(r *models.Report, question string) string {
	return fmt.Sprintf("Report Name: %s\n"+
		"Report Description: %s\n"+
		"Original Query: %s\n\n"+
		"API Code (fetches data):\n```javascript\n%s\n```\n\n"+
		"Render Code (displays data):\n```jsx\n%s\n```\n\n"+
		"User Question: %s\n\n"+
		"Answer the user's question based on the provided report details and code:",
		r.Name, r.Description, r.Query, r.APICode, r.RenderCode, question)
}
